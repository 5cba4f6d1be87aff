package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

// New returns a configured validator with custom struct-level validation registered.
// Field errors are reported under their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(createSwapOrderStructValidation, CreateSwapOrderRequest{})
	v.RegisterStructValidation(submitRequirementsStructValidation, SubmitRequirementsRequest{})
	v.RegisterStructValidation(cancelStructValidation, CancelRequest{})

	return v
}

// createSwapOrderStructValidation checks an explicit fee is a positive amount in cents.
func createSwapOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateSwapOrderRequest)
	if req.CommitmentFee == nil {
		return
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(*req.CommitmentFee))
	if err != nil || !swaporder.ValidAmount(fee) {
		sl.ReportError(req.CommitmentFee, "commitment_fee", "CommitmentFee", "positive_amount", "")
	}
}

// whitespace-only values pass `required`
func submitRequirementsStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(SubmitRequirementsRequest)
	if strings.TrimSpace(req.MeetupLocation) == "" {
		sl.ReportError(req.MeetupLocation, "meetup_location", "MeetupLocation", "notblank", "")
	}
}

func cancelStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CancelRequest)
	if strings.TrimSpace(req.Reason) == "" {
		sl.ReportError(req.Reason, "reason", "Reason", "notblank", "")
	}
}
