package tcpserver

import (
	"context"
	"time"

	"github.com/JaroslawMajcherczyk/PUS/cacher"
	"github.com/JaroslawMajcherczyk/PUS/equation"
	"github.com/JaroslawMajcherczyk/PUS/logger"
	"github.com/JaroslawMajcherczyk/PUS/perfmonitor"
)

// Evaluator turns a request payload into the reply text. Results of valid
// equations are memoised so repeated identical equations, including ones
// arriving concurrently from several clients, are served from the cache.
// The memo does not affect replies: on any cache error the equation is
// computed directly.
type Evaluator struct {
	results cacher.Cacher[string]
	ttl     time.Duration
	logger  logger.Logger
}

// NewEvaluator creates an Evaluator. A nil results cache evaluates every
// request directly.
//
// Parameters:
//   - results: Memo keyed by the equation's exact operands and operator
//   - ttl: Lifetime of a memoised result
//   - log: Destination for per-request debug entries
//
// Returns:
//   - A new *Evaluator
func NewEvaluator(results cacher.Cacher[string], ttl time.Duration, log logger.Logger) *Evaluator {
	return &Evaluator{results: results, ttl: ttl, logger: log}
}

// Evaluate returns the formatted result of input, or one of the fixed error
// replies from package equation. Malformed input never fails the caller.
func (e *Evaluator) Evaluate(ctx context.Context, input string) string {
	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()

	eq, err := equation.Parse(input)
	if err != nil {
		pm.Stop()
		e.logger.Debug("equation rejected",
			logger.Field{Key: "error", Value: err.Error()},
			logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()},
		)
		return equation.Reply(err)
	}

	reply := e.compute(ctx, eq)
	pm.Stop()
	e.logger.Debug("equation evaluated",
		logger.Field{Key: "equation", Value: eq.String()},
		logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()},
	)

	return reply
}

func (e *Evaluator) compute(ctx context.Context, eq equation.Equation) string {
	direct := func(context.Context) (string, error) {
		return equation.FormatNumber(eq.Result()), nil
	}

	if e.results == nil {
		reply, _ := direct(ctx)
		return reply
	}

	reply, err := e.results.GetOrFetch(ctx, eq.Compact(), e.ttl, direct)
	if err != nil {
		reply, _ = direct(ctx)
	}

	return reply
}
