// Package ingest turns uploaded ledgers into validated transactions.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/ringscope/internal/domain"
)

// Required column names.
const (
	ColTransactionID = "transaction_id"
	ColSenderID      = "sender_id"
	ColReceiverID    = "receiver_id"
	ColAmount        = "amount"
	ColTimestamp     = "timestamp"
)

var requiredColumns = []string{ColTransactionID, ColSenderID, ColReceiverID, ColAmount, ColTimestamp}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s with the first matching accepted layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseCSV reads a header row followed by one transaction per row.
// Column order is free and extra columns are ignored.
func ParseCSV(r io.Reader) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.ValidationError{Reason: "input is empty"}
	}
	if err != nil {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("malformed csv: %v", err)}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{
			Field:  strings.Join(missing, ", "),
			Reason: "missing required columns",
		}
	}

	var txs []domain.Transaction
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ValidationError{Row: row, Reason: fmt.Sprintf("malformed csv: %v", err)}
		}
		if blank(record) {
			row--
			continue
		}

		field := func(name string) string {
			i := cols[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		tx, err := FromRecord(row, TransactionRecord{
			TransactionID: field(ColTransactionID),
			SenderID:      field(ColSenderID),
			ReceiverID:    field(ColReceiverID),
			Amount:        FlexValue(field(ColAmount)),
			Timestamp:     FlexValue(field(ColTimestamp)),
		})
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// TransactionRecord is the untyped wire form of a transaction. Amount and
// Timestamp accept JSON strings or numbers.
type TransactionRecord struct {
	TransactionID string    `json:"transaction_id"`
	SenderID      string    `json:"sender_id"`
	ReceiverID    string    `json:"receiver_id"`
	Amount        FlexValue `json:"amount"`
	Timestamp     FlexValue `json:"timestamp"`
}

// FlexValue holds the textual form of a JSON string or number.
type FlexValue string

// UnmarshalJSON accepts a quoted string, a bare number or null.
func (v *FlexValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*v = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		*v = FlexValue(unquoted)
		return nil
	}
	*v = FlexValue(s)
	return nil
}

// FromRecords validates records and converts them to transactions.
func FromRecords(records []TransactionRecord) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0, len(records))
	for i, rec := range records {
		tx, err := FromRecord(i+1, rec)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// FromRecord validates one record. row is reported in errors.
func FromRecord(row int, rec TransactionRecord) (domain.Transaction, error) {
	tx := domain.Transaction{
		ID:         strings.TrimSpace(rec.TransactionID),
		SenderID:   strings.TrimSpace(rec.SenderID),
		ReceiverID: strings.TrimSpace(rec.ReceiverID),
	}
	for _, f := range []struct{ name, value string }{
		{ColTransactionID, tx.ID},
		{ColSenderID, tx.SenderID},
		{ColReceiverID, tx.ReceiverID},
	} {
		if f.value == "" {
			return tx, &domain.ValidationError{Row: row, Field: f.name, Reason: "is required"}
		}
	}

	amount := strings.TrimSpace(string(rec.Amount))
	if amount == "" {
		return tx, &domain.ValidationError{Row: row, Field: ColAmount, Reason: "is required"}
	}
	a, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return tx, &domain.ValidationError{Row: row, Field: ColAmount, Reason: fmt.Sprintf("invalid number %q", amount)}
	}
	tx.Amount = a

	ts := strings.TrimSpace(string(rec.Timestamp))
	if ts == "" {
		return tx, &domain.ValidationError{Row: row, Field: ColTimestamp, Reason: "is required"}
	}
	parsed, err := ParseTimestamp(ts)
	if err != nil {
		return tx, &domain.ValidationError{Row: row, Field: ColTimestamp, Reason: err.Error()}
	}
	tx.Timestamp = parsed

	if err := tx.Validate(row); err != nil {
		return tx, err
	}
	return tx, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
