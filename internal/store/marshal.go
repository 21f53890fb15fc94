package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/evertag/internal/domain"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func timePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// marshalItems converts the line items to canonical JSON TEXT so the stored
// snapshot is byte-identical for identical purchases.
func marshalItems(items []domain.LineItem) (string, error) {
	data, err := domain.MarshalCanonical(domain.ItemsDocument(items))
	if err != nil {
		return "", fmt.Errorf("marshal items: %w", err)
	}
	return string(data), nil
}

func unmarshalItems(data string) ([]domain.LineItem, error) {
	var items []domain.LineItem
	if data == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}

func marshalAddress(addr domain.Address) (string, error) {
	data, err := domain.MarshalCanonical(map[string]any{
		"name":        addr.Name,
		"line1":       addr.Line1,
		"line2":       addr.Line2,
		"city":        addr.City,
		"state":       addr.State,
		"postal_code": addr.PostalCode,
		"country":     addr.Country,
	})
	if err != nil {
		return "", fmt.Errorf("marshal address: %w", err)
	}
	return string(data), nil
}

func unmarshalAddress(data string) (domain.Address, error) {
	var addr domain.Address
	if data == "" {
		return addr, nil
	}
	if err := json.Unmarshal([]byte(data), &addr); err != nil {
		return addr, fmt.Errorf("unmarshal address: %w", err)
	}
	return addr, nil
}

func marshalPersonalization(p map[string]string) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	data, err := domain.MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("marshal personalization: %w", err)
	}
	return string(data), nil
}
