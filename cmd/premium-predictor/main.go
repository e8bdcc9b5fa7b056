package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/prediction"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	request prediction.Request
	url     string
	timeout time.Duration
	verbose bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	cmd := &cobra.Command{
		Use:           "premium-predictor",
		Short:         "Predict an insurance premium category",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), out, errOut, opts)
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	f := cmd.Flags()
	f.IntVar(&opts.request.Age, "age", 30, "Age (1-119)")
	f.Float64Var(&opts.request.Weight, "weight", 65.0, "Weight in kg")
	f.Float64Var(&opts.request.Height, "height", 1.7, "Height in metres (0.5-2.5)")
	f.Float64Var(&opts.request.IncomeLPA, "income-lpa", 10.0, "Annual income in lakhs per annum")
	f.BoolVar(&opts.request.Smoker, "smoker", false, "Whether the applicant smokes")
	f.StringVar(&opts.request.City, "city", "Mumbai", "City of residence")
	f.StringVar(&opts.request.Occupation, "occupation", "student", "Occupation, one of the model's categories")
	f.StringVar(&opts.url, "url", cfg.PredictAPIURL, "Prediction endpoint (PREDICT_API_URL)")
	f.DurationVar(&opts.timeout, "timeout", cfg.PredictTimeout, "Request timeout (PREDICT_TIMEOUT)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log request details to stderr")

	return cmd
}

// run validates the form, submits it and renders the outcome. Failures are
// written to errOut.
func run(ctx context.Context, out, errOut io.Writer, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.request.Validate(); err != nil {
		prediction.RenderError(errOut, err)
		return err
	}

	logger := zerolog.Nop()
	if opts.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: errOut}).With().Timestamp().Logger()
	}

	clientOpts := []prediction.ClientOption{prediction.WithLogger(logger)}
	if opts.timeout > 0 {
		clientOpts = append(clientOpts, prediction.WithTimeout(opts.timeout))
	}
	if opts.url == "" {
		err := fmt.Errorf("%w: no prediction endpoint configured", prediction.ErrRequest)
		prediction.RenderError(errOut, err)
		return err
	}

	res, err := prediction.NewClient(opts.url, clientOpts...).Predict(ctx, opts.request)
	if err != nil {
		prediction.RenderError(errOut, err)
		return err
	}
	prediction.Render(out, res)
	return nil
}
