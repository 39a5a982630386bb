package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/config"
	"github.com/Kammelleon/pdf-qa/internal/notify"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

// runChat uploads path and then sends one question per input line.
// Failed questions are reported through notifications and do not end
// the session.
func runChat(ctx context.Context, cfg *config.Config, logger zerolog.Logger, path string, in io.Reader, out io.Writer) error {
	a, err := buildApp(ctx, cfg, logger, notify.NewWriter(out))
	if err != nil {
		return err
	}
	defer a.Close()

	cand, err := intake.FromPath(path)
	if err != nil {
		return err
	}
	doc, res, err := a.service.SelectAndUpload(ctx, cand)
	if !res.Accepted {
		return fmt.Errorf("file rejected: %s", res.Reason)
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", cand.Name, err)
	}
	fmt.Fprintf(out, "Ask a question about %s (Ctrl-D to quit)\n", doc.DisplayName)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		turn, err := a.service.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		fmt.Fprintln(out, turn.Text)
	}
	fmt.Fprintln(out)
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
