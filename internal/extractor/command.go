package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"shapelearner/internal/config"
	"shapelearner/internal/metrics"
	"shapelearner/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// CommandOption configures a CommandClient.
type CommandOption func(*CommandClient)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) CommandOption {
	return func(c *CommandClient) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// CommandClient runs a local extraction binary once per part:
//
//	<binary> <args...> --part <id> [--label <label>] <image>...
//
// The binary prints a JSON Response on stdout.
type CommandClient struct {
	binary  string
	args    []string
	timeout time.Duration
	exec    Executor
}

// NewCommandClient constructs a client for cfg.Binary.
func NewCommandClient(cfg config.Extractor, opts ...CommandOption) (*CommandClient, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "extractor", "init", "extractor binary required", nil)
	}
	client := &CommandClient{
		binary:  binary,
		args:    append([]string(nil), cfg.Args...),
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Extract runs the binary for req.
func (c *CommandClient) Extract(ctx context.Context, req Request) (resp Response, err error) {
	defer func() { metrics.RecordExtraction(err) }()
	if err := validateRequest(req); err != nil {
		return Response{}, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append([]string(nil), c.args...)
	args = append(args, "--part", strconv.FormatInt(req.PartID, 10))
	if req.Label != "" {
		args = append(args, "--label", req.Label)
	}
	args = append(args, req.Images...)

	out, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, services.Wrap(services.ErrTimeout, "extractor", "extract", c.binary, ctx.Err())
		}
		return Response{}, services.Wrap(services.ErrExternalTool, "extractor", "extract", c.binary, err)
	}
	return decodeResponse(out)
}

// Probe checks the binary resolves on PATH.
func (c *CommandClient) Probe(context.Context) error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return services.Wrap(services.ErrExternalTool, "extractor", "probe", c.binary, err)
	}
	return nil
}
