package influxv2

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
)

// fluxClient is the subset of the server API the engine uses.
type fluxClient interface {
	Query(ctx context.Context, org, flux string) ([]map[string]interface{}, error)
	WritePoints(ctx context.Context, org, bucket string, points []*write.Point) error
	Delete(ctx context.Context, org, bucket string, start, stop time.Time, predicate string) error
	Buckets(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) (bool, error)
	Close()
}

type sdkClient struct {
	client influxdb2.Client
}

func newSDKClient(url, token string, timeout time.Duration) *sdkClient {
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(timeout.Seconds()))
	return &sdkClient{client: influxdb2.NewClientWithOptions(url, token, opts)}
}

func (c *sdkClient) Query(ctx context.Context, org, flux string) ([]map[string]interface{}, error) {
	result, err := c.client.QueryAPI(org).Query(ctx, flux)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer result.Close()

	var rows []map[string]interface{}
	for result.Next() {
		values := result.Record().Values()
		row := make(map[string]interface{}, len(values))
		for k, v := range values {
			row[k] = v
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return rows, nil
}

func (c *sdkClient) WritePoints(ctx context.Context, org, bucket string, points []*write.Point) error {
	return errors.WithStack(c.client.WriteAPIBlocking(org, bucket).WritePoint(ctx, points...))
}

func (c *sdkClient) Delete(ctx context.Context, org, bucket string, start, stop time.Time, predicate string) error {
	return errors.WithStack(c.client.DeleteAPI().DeleteWithName(ctx, org, bucket, start, stop, predicate))
}

func (c *sdkClient) Buckets(ctx context.Context) ([]string, error) {
	buckets, err := c.client.BucketsAPI().GetBuckets(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if buckets == nil {
		return nil, nil
	}
	names := make([]string, 0, len(*buckets))
	for _, b := range *buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

func (c *sdkClient) Ping(ctx context.Context) (bool, error) {
	return c.client.Ping(ctx)
}

func (c *sdkClient) Close() {
	c.client.Close()
}
