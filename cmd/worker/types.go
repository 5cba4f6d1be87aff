package main

import (
	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

// statusChange is the part of a swap orders stream record the worker acts on.
type statusChange struct {
	OrderID string
	From    swaporder.Status
	To      swaporder.Status
}

// becameTerminal reports whether this write moved the order into completed or cancelled.
func (s statusChange) becameTerminal() bool {
	return s.To.Terminal() && !s.From.Terminal()
}

// changeFromRecord extracts the order id and status pair from a MODIFY record. ok is false for
// inserts, removes and records without both images.
func changeFromRecord(r events.DynamoDBEventRecord) (statusChange, bool) {
	if r.EventName != string(events.DynamoDBOperationTypeModify) {
		return statusChange{}, false
	}
	id := stringAttr(r.Change.Keys, "order_id")
	if id == "" {
		id = stringAttr(r.Change.NewImage, "order_id")
	}
	from := stringAttr(r.Change.OldImage, "status")
	to := stringAttr(r.Change.NewImage, "status")
	if id == "" || to == "" {
		return statusChange{}, false
	}
	return statusChange{OrderID: id, From: swaporder.Status(from), To: swaporder.Status(to)}, true
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, name string) string {
	v, ok := image[name]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}
