package venue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"solana-trade-agent/internal/domain"
)

var (
	filledKeys = []string{"filled_amount", "filled", "amount_filled", "executed_qty"}
	priceKeys  = []string{"price", "avg_price", "fill_price"}
	inKeys     = []string{"in_amount", "input_amount", "inAmount"}
	outKeys    = []string{"out_amount", "output_amount", "outAmount"}
	txKeys     = []string{"signature", "tx_id", "txid", "tx_hash"}
	errorKeys  = []string{"error", "message", "reason"}
)

// decodeResult maps a venue response body onto a VenueResult.
//
// Accepted shapes:
//
//	1.5                                  filled amount
//	[1.5, 2.0, "sig"]                    filled amount, price, signature
//	{"filled_amount":1.5,"price":2.0}    object, optionally wrapped in "result" or "data"
//
// The status and error of a wrapping object apply to the wrapped payload.
func decodeResult(body []byte) (*domain.VenueResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", domain.ErrMalformedVenueResponse)
	}
	root := gjson.ParseBytes(body)
	var envelope gjson.Result
	for _, k := range []string{"result", "data"} {
		if v := root.Get(k); root.IsObject() && (v.IsObject() || v.IsArray() || v.Type == gjson.Number) {
			envelope, root = root, v
			break
		}
	}

	res := &domain.VenueResult{}
	switch {
	case root.Type == gjson.Number:
		res.FilledAmount = number(root)
	case root.IsArray():
		items := root.Array()
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: empty tuple", domain.ErrMalformedVenueResponse)
		}
		res.FilledAmount = number(items[0])
		if len(items) > 1 {
			res.Price = number(items[1])
		}
		if len(items) > 2 {
			res.TxRef = text(items[2])
		}
	case root.IsObject():
		res.FilledAmount = number(first(root, filledKeys))
		res.Price = number(first(root, priceKeys))
		res.InAmount = number(first(root, inKeys))
		res.OutAmount = number(first(root, outKeys))
		res.TxRef = text(first(root, txKeys))
		res.Status = strings.ToLower(strings.TrimSpace(root.Get("status").String()))
		if msg := first(root, errorKeys); msg.Exists() {
			res.Message = errorText(msg)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported shape %s", domain.ErrMalformedVenueResponse, root.Type)
	}
	if envelope.Exists() {
		applyEnvelope(res, envelope)
	}
	return res, nil
}

// applyEnvelope folds the outer status and error into res. An outer rejection
// wins over whatever the payload reports.
func applyEnvelope(res *domain.VenueResult, envelope gjson.Result) {
	status := strings.ToLower(strings.TrimSpace(envelope.Get("status").String()))
	if status != "" && (res.Status == "" || isRejected(status)) {
		res.Status = status
	}
	if e := envelope.Get("error"); e.Exists() && e.Type != gjson.Null && res.Message == "" {
		res.Message = errorText(e)
	}
}

func first(obj gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func number(v gjson.Result) *float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func text(v gjson.Result) *string {
	if v.Type != gjson.String {
		return nil
	}
	s := strings.TrimSpace(v.Str)
	if s == "" {
		return nil
	}
	return &s
}

// errorText flattens an error field, which may be a string or an object.
func errorText(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return strings.TrimSpace(v.Str)
	case v.IsObject():
		if m := v.Get("message"); m.Exists() {
			return m.String()
		}
		return v.Raw
	case v.Type == gjson.False:
		return ""
	default:
		return v.Raw
	}
}
