package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/usecase"
	"listing-wizard/internal/wizard"
)

const helpText = `Type your answer and press enter. Commands:
  /approve                      approve the persona, questions or answers
  /regenerate <persona|questions|answers>
  /highlights a, b, c | detail  pick highlights and an optional unique detail
  /audience primary | secondary target audience with an optional second one
  /final                        generate the listing
  /help                         show this help
  /quit                         leave; the session can be resumed later`

// stepper is the part of the session service the interactive loop drives.
type stepper interface {
	AdvanceStep(ctx context.Context, in usecase.StepInput) (usecase.StepOutput, error)
}

var errQuit = errors.New("quit")

// parseLine turns one line of input into a step request for a session whose
// collected data is d. A nil input with a nil error means the line is
// handled locally.
func parseLine(line string, d domain.CollectedData) (*usecase.StepInput, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return &usecase.StepInput{Message: line}, nil
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return nil, errQuit
	case "help", "?":
		return nil, nil
	case "approve":
		return &usecase.StepInput{Action: string(wizard.SubStageOf(d).ApproveAction())}, nil
	case "regenerate", "regen":
		if arg == "" {
			return nil, errors.New("usage: /regenerate <persona|questions|answers>")
		}
		return &usecase.StepInput{Action: "regenerate_" + strings.ToLower(arg)}, nil
	case "highlights":
		list, detail, _ := strings.Cut(arg, "|")
		return &usecase.StepInput{
			Action: string(wizard.ActionHighlights),
			Data: wizard.StepData{
				Highlights:   strings.Split(list, ","),
				UniqueDetail: strings.TrimSpace(detail),
			},
		}, nil
	case "audience":
		primary, secondary, _ := strings.Cut(arg, "|")
		return &usecase.StepInput{
			Message: strings.TrimSpace(primary),
			Data:    wizard.StepData{SecondaryAudience: strings.TrimSpace(secondary)},
		}, nil
	case "final":
		return &usecase.StepInput{Action: string(wizard.ActionGenerateFinal)}, nil
	}
	return nil, fmt.Errorf("unknown command /%s, try /help", cmd)
}

// converse reads lines from in until EOF, /quit or a terminal status.
func converse(ctx context.Context, svc stepper, conv domain.Conversation, in io.Reader, out io.Writer, prompt string) error {
	if conv.Status.Terminal() {
		fmt.Fprintf(out, "Session %s is %s.\n", conv.SessionID, conv.Status)
		return nil
	}
	data := conv.Data
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		req, err := parseLine(scanner.Text(), data)
		switch {
		case errors.Is(err, errQuit):
			fmt.Fprintf(out, "Resume later with: wizard resume %s\n", conv.SessionID)
			return nil
		case err != nil:
			fmt.Fprintln(out, warnStyle.Render(err.Error()))
		case req == nil:
			if strings.TrimSpace(scanner.Text()) != "" {
				fmt.Fprintln(out, helpText)
			}
		default:
			req.SessionID = conv.SessionID
			res, err := svc.AdvanceStep(ctx, *req)
			if err != nil {
				var ue *usecase.Error
				if !errors.As(err, &ue) || !ue.Retryable() {
					return err
				}
				if res.Message != "" {
					fmt.Fprintln(out, assistantStyle.Render(res.Message))
				}
				fmt.Fprintln(out, warnStyle.Render("(temporary failure, send the same input again)"))
				break
			}
			data = res.Data
			printStep(out, res)
			if res.Status.Terminal() {
				return nil
			}
		}
		fmt.Fprint(out, prompt)
	}
	return scanner.Err()
}

func printStep(out io.Writer, res usecase.StepOutput) {
	fmt.Fprintln(out, assistantStyle.Render(res.Message))
	for i, h := range res.Highlights {
		fmt.Fprintf(out, "  %2d. %s\n", i+1, h)
	}
	if res.CurrentStep == domain.StepApproval {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("[step %d, %s]", res.CurrentStep, wizard.SubStageOf(res.Data))))
	} else {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("[step %d]", res.CurrentStep)))
	}
	if res.Data.Quality != nil {
		printQuality(out, *res.Data.Quality)
	}
	if !res.Usage.IsZero() {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("[tokens: %d in, %d out, %d total]", res.Usage.Input, res.Usage.Output, res.Usage.Total)))
	}
}

func printQuality(out io.Writer, q domain.QualityReport) {
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Quality score %d/%d", q.Score, len(q.Checks))))
	for _, c := range q.Checks {
		mark := failStyle.Render("x")
		if c.Passed {
			mark = passStyle.Render("ok")
		}
		fmt.Fprintf(out, "  [%s] %s: %s\n", mark, c.Name, c.Explanation)
	}
}
