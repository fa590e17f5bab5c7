package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/throttleq/throttleq/internal/api"
	"github.com/throttleq/throttleq/internal/batch"
	"github.com/throttleq/throttleq/internal/config"
	"github.com/throttleq/throttleq/internal/cost"
	"github.com/throttleq/throttleq/internal/events"
	"github.com/throttleq/throttleq/internal/logging"
	"github.com/throttleq/throttleq/internal/progress"
	"github.com/throttleq/throttleq/internal/ratelimit"
)

// newRunCmd creates the 'run' command.
func newRunCmd() *cobra.Command {
	var (
		inputPath          string
		outputPath         string
		url                string
		requestsPerMinute  float64
		tokensPerMinute    float64
		requestPeriod      time.Duration
		tokenPeriod        time.Duration
		maxAttempts        int
		cooldown           time.Duration
		estimatorKind      string
		encoding           string
		rateLimitSignature string
		dryRun             bool
		quiet              bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a JSONL file of API requests at a bounded rate",
		Long: `Process a JSONL file of API requests in parallel while staying under
request-per-minute and token-per-minute limits.

Each input line is one JSON request payload, optionally carrying a
"metadata" field that is stripped before dispatch and echoed into the
result line. Results are appended to the output file as they finish,
one JSON array per line:

  [payload, response]            on success
  [payload, [errors...]]         after all attempts fail

with metadata appended as a third element when present. If any request
fails permanently, the output file is renamed with a _with_errors
suffix so downstream tooling cannot mistake it for a clean run.

Flags override values from the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.URL = url
			}
			if flags.Changed("requests-per-minute") {
				cfg.RequestsPerMinute = requestsPerMinute
			}
			if flags.Changed("tokens-per-minute") {
				cfg.TokensPerMinute = tokensPerMinute
			}
			if flags.Changed("max-attempts") {
				cfg.MaxAttempts = maxAttempts
			}
			if flags.Changed("cooldown") {
				cfg.Cooldown = cooldown
			}
			if flags.Changed("estimator") {
				cfg.Estimator = estimatorKind
			}
			if flags.Changed("encoding") {
				cfg.Encoding = encoding
			}
			if flags.Changed("rate-limit-signature") {
				cfg.RateLimitSignature = rateLimitSignature
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = defaultOutputPath(inputPath)
			}

			estimator, err := buildEstimator(cfg)
			if err != nil {
				return err
			}

			if dryRun {
				return dryRunCheck(log, inputPath, estimator)
			}

			key, source := config.ResolveAPIKeySource(apiKey, tokenFile, cfgFile)
			if key == "" {
				return fmt.Errorf("no API key found; use --api-key, --token-file, 'throttleq config init' or THROTTLEQ_API_KEY")
			}
			log.Debug().Str("source", source).Msg("resolved API key")
			caller := api.NewClient(cfg.URL, key, log)

			input, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("opening input file: %w", err)
			}
			defer input.Close()

			results, err := batch.CreateResultLog(outputPath)
			if err != nil {
				return err
			}
			defer results.Close()

			log.Info().
				Str("input", inputPath).
				Str("output", outputPath).
				Str("url", cfg.URL).
				Float64("requests_per_period", cfg.RequestsPerMinute).
				Float64("tokens_per_period", cfg.TokensPerMinute).
				Int("max_attempts", cfg.MaxAttempts).
				Msg("starting batch")

			bus := events.NewBus(0)
			defer bus.Close()

			watchDone := make(chan struct{})
			var reporter progress.Reporter
			if quiet {
				reporter = progress.NewNoOpProgress()
			} else {
				reporter = progress.NewCLIProgress()
			}
			reporter.Start("processing requests")
			go func() {
				defer close(watchDone)
				progress.Watch(bus.SubscribeAll(), reporter)
			}()

			src := batch.NewSource(input)
			retries := batch.NewRetryQueue()
			tracker := batch.NewStatusTracker()
			requests := ratelimit.NewBucket(cfg.RequestsPerMinute, requestPeriod)
			costs := ratelimit.NewBucket(cfg.TokensPerMinute, tokenPeriod)
			cool := ratelimit.NewCooldown(cfg.Cooldown)
			dispatcher := batch.NewDispatcher(caller, results, tracker, retries,
				cool, cfg.RateLimitSignature, log, bus)
			runner := batch.NewRunner(src, retries, tracker, requests, costs,
				cool, dispatcher, estimator, batch.RunnerConfig{MaxAttempts: cfg.MaxAttempts},
				log, bus)

			runErr := runner.Run(GetContext())
			// A fatal abort publishes no completion event; closing the
			// bus unblocks the watcher either way.
			bus.Close()
			<-watchDone
			if dropped := bus.Dropped(); dropped > 0 {
				log.Debug().Int64("dropped", dropped).Msg("progress events dropped by a slow subscriber")
			}

			if err := results.Close(); err != nil {
				log.Error().Err(err).Msg("closing results file")
			}
			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					return fmt.Errorf("run cancelled; partial results in %s", results.Path())
				}
				return runErr
			}

			if status := tracker.Snapshot(); status.Failed > 0 {
				renamed, err := results.MarkErrors()
				if err != nil {
					return fmt.Errorf("marking results file: %w", err)
				}
				log.Warn().Str("output", renamed).Msg("run finished with failed requests")
				return nil
			}

			log.Info().Str("output", results.Path()).Msg("run finished")
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input JSONL file of request payloads (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSONL file (default: input path with _results suffix)")
	cmd.Flags().StringVar(&url, "url", "", "Endpoint URL to POST each payload to")
	cmd.Flags().Float64Var(&requestsPerMinute, "requests-per-minute", 0, "Request budget per period")
	cmd.Flags().Float64Var(&tokensPerMinute, "tokens-per-minute", 0, "Token budget per period")
	cmd.Flags().DurationVar(&requestPeriod, "request-period", time.Minute, "Refill period of the request bucket")
	cmd.Flags().DurationVar(&tokenPeriod, "token-period", time.Minute, "Refill period of the token bucket")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempts per request before recording failure")
	cmd.Flags().DurationVar(&cooldown, "cooldown", 0, "Pause applied after a rate-limit rejection")
	cmd.Flags().StringVar(&estimatorKind, "estimator", "", `Cost estimator: "openai" or "zero"`)
	cmd.Flags().StringVar(&encoding, "encoding", "", "Token encoding for the openai estimator")
	cmd.Flags().StringVar(&rateLimitSignature, "rate-limit-signature", "", "Substring that marks an error response as rate limiting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the pipeline without sending requests")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Disable the progress bar")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// buildEstimator selects the cost estimator named in the config.
func buildEstimator(cfg *config.Config) (batch.CostEstimator, error) {
	switch cfg.Estimator {
	case "zero":
		return cost.ZeroEstimator{}, nil
	case "openai":
		enc, err := cost.NewTiktokenEncoder(cfg.Encoding)
		if err != nil {
			return nil, err
		}
		return cost.NewOpenAIEstimator(cfg.URL, enc)
	default:
		return nil, config.ErrUnknownEstimator
	}
}

// defaultOutputPath derives the results path from the input path, e.g.
// requests.jsonl -> requests_results.jsonl.
func defaultOutputPath(inputPath string) string {
	if strings.HasSuffix(inputPath, ".jsonl") {
		return strings.TrimSuffix(inputPath, ".jsonl") + "_results.jsonl"
	}
	return inputPath + "_results.jsonl"
}

// dryRunCheck validates a run without dispatching anything: every input
// line is parsed and priced exactly as a real run would, but no output
// file is created and no request leaves the machine.
func dryRunCheck(log *logging.Logger, inputPath string, estimator batch.CostEstimator) error {
	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening input file: %w", err)
	}
	defer input.Close()

	source := batch.NewSource(input)
	var requests int
	var totalCost float64
	for {
		payload, _, ok, err := source.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		jobCost, err := estimator.EstimateCost(payload)
		if err != nil {
			return fmt.Errorf("estimating cost at line %d: %w", source.Line(), err)
		}
		requests++
		totalCost += jobCost
	}

	log.Info().
		Int("requests", requests).
		Float64("total_cost", totalCost).
		Msg("dry run: configuration and input are valid, nothing dispatched")
	return nil
}
