package invoice

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ErrMalformedReply marks a model reply that is not exactly one JSON object.
var ErrMalformedReply = errors.New("model reply is not a single JSON object")

var fieldAliases = map[string][]string{
	FieldAmount:       {"amount", "total", "price"},
	FieldDescription:  {"description", "work", "details"},
	FieldPayer:        {"payer", "payee", "client"},
	FieldRecipient:    {"recipient", "worker", "contractor"},
	FieldWorkingHours: {"workingHours", "working_hours", "hours"},
}

var reLeadingNumber = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)

// ParseDraft converts a raw model reply into a Draft. Surrounding
// whitespace is tolerated; fences, prose, arrays and concatenated objects
// are rejected with ErrMalformedReply. A present amount that cannot be read
// as a number yields ErrInvalidAmount.
func ParseDraft(raw string) (Draft, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return Draft{}, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}
	if !gjson.Valid(body) {
		return Draft{}, fmt.Errorf("%w: %s", ErrMalformedReply, preview(body))
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return Draft{}, fmt.Errorf("%w: got %s", ErrMalformedReply, preview(body))
	}

	d := NewDraft()
	amount, err := parseAmountField(lookup(root, FieldAmount))
	if err != nil {
		return Draft{}, err
	}
	d.Amount = amount
	d.Description = stringField(lookup(root, FieldDescription))
	d.Payer = stringField(lookup(root, FieldPayer))
	d.Recipient = stringField(lookup(root, FieldRecipient))
	d.WorkingHours = hoursField(lookup(root, FieldWorkingHours))

	if assumed := root.Get("assumedFields"); assumed.IsArray() {
		d.AssumedFields = []string{}
		for _, f := range assumed.Array() {
			if s := strings.TrimSpace(f.String()); s != "" {
				d.AssumedFields = append(d.AssumedFields, s)
			}
		}
	}
	return d, nil
}

func lookup(root gjson.Result, field string) gjson.Result {
	for _, key := range fieldAliases[field] {
		if r := root.Get(key); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func parseAmountField(r gjson.Result) (decimal.NullDecimal, error) {
	switch r.Type {
	case gjson.Null:
		return decimal.NullDecimal{}, nil
	case gjson.Number:
		d, err := decimal.NewFromString(r.Raw)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("%w: %s", ErrInvalidAmount, r.Raw)
		}
		return decimal.NewNullDecimal(d), nil
	case gjson.String:
		if strings.TrimSpace(r.Str) == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := ParseAmount(r.Str)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("%w: unexpected %s", ErrInvalidAmount, r.Raw)
	}
}

func stringField(r gjson.Result) *string {
	switch r.Type {
	case gjson.String, gjson.Number:
		return Str(r.String())
	}
	return nil
}

// hoursField drops unreadable or negative hours rather than failing the
// round; hours are informational only.
func hoursField(r gjson.Result) *float64 {
	var h float64
	switch r.Type {
	case gjson.Number:
		h = r.Num
	case gjson.String:
		m := reLeadingNumber.FindStringSubmatch(r.Str)
		if m == nil {
			return nil
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		h = v
	default:
		return nil
	}
	if h < 0 {
		return nil
	}
	return &h
}

func preview(s string) string {
	const max = 80
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return strconv.Quote(s[:max] + "...")
	}
	return strconv.Quote(s)
}
