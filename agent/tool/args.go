package tool

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	msgBadOrderID = "Error: order_id must be a positive integer."
	msgBadQuery   = "Error: query must be a non-empty string."
)

// decodeOrderID reads order_id from the tool arguments. Models send it as a
// JSON integer, an integral float, or a numeric string. A non-empty message
// means the arguments were unusable and the message is the tool output.
func decodeOrderID(args string) (int64, string) {
	fields, ok := decodeFields(args)
	if !ok {
		return 0, msgBadOrderID
	}

	raw, ok := fields["order_id"]
	if !ok {
		return 0, msgBadOrderID
	}

	var id int64
	switch v := raw.(type) {
	case json.Number:
		id, ok = integral(string(v))
	case string:
		id, ok = integral(strings.TrimSpace(v))
	default:
		ok = false
	}
	if !ok || id <= 0 {
		return 0, msgBadOrderID
	}
	return id, ""
}

func decodeQuery(args string) (string, string) {
	fields, ok := decodeFields(args)
	if !ok {
		return "", msgBadQuery
	}
	query, _ := fields["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", msgBadQuery
	}
	return query, ""
}

func decodeFields(args string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(args)))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func integral(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
