package scalyr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/slighter12/dataset-mcp-go/tools/types"
)

// FactoryName is the builtin name tool-definition files bind to.
const FactoryName = "dataset_scalyr_query"

// NewFactory returns a factory for the query tool. The binding option
// "server" overrides server for one definition file.
func NewFactory(server, tokenEnv string, httpClient *http.Client) func(types.Binding) (types.Handler, error) {
	return func(binding types.Binding) (types.Handler, error) {
		client := NewClient(binding.Option("server", server), binding.Option("token_env", tokenEnv), httpClient)
		return types.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
			q, err := QueryFromArguments(args)
			if err != nil {
				return nil, err
			}
			return client.Query(ctx, q), nil
		}), nil
	}
}

// QueryFromArguments applies defaults to validated tool arguments.
func QueryFromArguments(args map[string]any) (Query, error) {
	q := Query{
		StartTime: DefaultStartTime,
		EndTime:   DefaultEndTime,
		MaxCount:  DefaultMaxCount,
	}

	filter, ok := args["filter"].(string)
	if !ok {
		return Query{}, types.NewInvalidArgumentsError("filter must be a string", "filter")
	}
	q.Filter = filter

	if v, ok := args["start_time"].(string); ok && v != "" {
		q.StartTime = v
	}
	if v, ok := args["end_time"].(string); ok && v != "" {
		q.EndTime = v
	}
	if v, ok := args["columns"].(string); ok {
		q.Columns = v
	}
	if v, ok := args["continuation_token"].(string); ok {
		q.ContinuationToken = v
	}

	if raw, present := args["max_count"]; present && raw != nil {
		count, err := toInt(raw)
		if err != nil {
			return Query{}, types.NewInvalidArgumentsError(err.Error(), "max_count")
		}
		if count < 1 || count > MaxMaxCount {
			return Query{}, types.NewInvalidArgumentsError(
				fmt.Sprintf("max_count must be between 1 and %d, got %d", MaxMaxCount, count), "max_count")
		}
		q.MaxCount = count
	}
	return q, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("max_count must be an integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("max_count must be an integer, got %s", n)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("max_count must be an integer, got %T", v)
	}
}
