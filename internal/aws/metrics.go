package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shopspring/decimal"
)

// MetricsEmitter publishes settlement metrics to CloudWatch. The settlement worker runs on
// Lambda, where there is no scrape endpoint.
type MetricsEmitter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetricsEmitter returns an emitter writing into the given namespace.
func NewMetricsEmitter(cw CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{CloudWatch: cw, Namespace: namespace, nowFunc: time.Now}
}

// RecordSettlement emits one settled hold: a count and the amount moved, dimensioned by outcome
// (released | refunded).
func (m *MetricsEmitter) RecordSettlement(ctx context.Context, outcome string, amount decimal.Decimal) error {
	now := m.nowFunc()
	dims := []cwtypes.Dimension{{Name: awsString("Outcome"), Value: awsString(outcome)}}
	count := 1.0
	value := amount.InexactFloat64()

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString("SettlementCount"),
				Dimensions: dims,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      &count,
			},
			{
				MetricName: awsString("SettledFeeAmount"),
				Dimensions: dims,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitNone,
				Value:      &value,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
