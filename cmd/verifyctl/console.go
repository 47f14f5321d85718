package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goldkiwi/storefront/internal/application/services"
	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/google/uuid"
)

// console drives one flow from line commands and prints its state.
type console struct {
	svc   ports.FlowService
	id    uuid.UUID
	out   io.Writer
	timer *services.CountdownTimer
}

func newConsole(svc ports.FlowService, id uuid.UUID, out io.Writer, timer *services.CountdownTimer) *console {
	return &console{svc: svc, id: id, out: out, timer: timer}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `commands:
  email <address>            set the email address
  details <username> <name>  set signup details
  code <digits>              enter the verification code
  send                       send or resend the code
  verify                     check the code
  submit [password [confirm]]
  back                       return to the email step
  show                       print the flow
  quit`)
}

// exec runs one command line and reports whether the session is over.
func (c *console) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	var (
		f   *flow.Flow
		err error
	)
	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		c.printHelp()
		return false
	case "show":
		f, err = c.svc.Get(ctx, c.id)
	case "email":
		f, err = c.svc.Update(ctx, c.id, ports.FieldChanges{Email: &rest})
	case "code":
		f, err = c.svc.Update(ctx, c.id, ports.FieldChanges{Code: &rest})
	case "details":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "usage: details <username> <name>")
			return false
		}
		username, name := args[0], strings.Join(args[1:], " ")
		f, err = c.svc.Update(ctx, c.id, ports.FieldChanges{Username: &username, Name: &name})
	case "send":
		f, err = c.svc.SendCode(ctx, c.id)
	case "verify":
		f, err = c.svc.VerifyCode(ctx, c.id)
	case "submit":
		in := flow.FinalizeInput{}
		if len(args) > 0 {
			in.Password = args[0]
			in.ConfirmPassword = args[0]
		}
		if len(args) > 1 {
			in.ConfirmPassword = args[1]
		}
		f, err = c.svc.Submit(ctx, c.id, in)
	case "back":
		f, err = c.svc.Back(ctx, c.id)
	default:
		fmt.Fprintf(c.out, "unknown command %q, type help\n", cmd)
		return false
	}

	if err != nil {
		c.report(err)
		if errors.Is(err, flow.ErrNotFound) {
			return true
		}
	}
	if f == nil {
		return false
	}
	c.show(f)
	return f.Step == flow.StepCompleted
}

// tick prints the countdown and reloads the flow once the code expires so
// the cleared code shows.
func (c *console) tick(ctx context.Context, st verification.CountdownState) {
	if !st.Active {
		return
	}
	if !st.Expired {
		fmt.Fprintf(c.out, "\rcode expires in %s ", st.Formatted())
		return
	}
	fmt.Fprintln(c.out)
	f, err := c.svc.Get(ctx, c.id)
	if err != nil {
		c.report(err)
		return
	}
	c.show(f)
}

func (c *console) show(f *flow.Flow) {
	v := f.View(c.svc.Now())
	fmt.Fprintf(c.out, "[%s] step: %s\n", v.Kind.Slug(), v.Step)
	if v.CurrentEmail != "" {
		fmt.Fprintf(c.out, "  current email: %s\n", v.CurrentEmail)
	}
	fmt.Fprintf(c.out, "  email: %s\n", orDash(v.Email))
	if v.Username != "" || v.Name != "" {
		fmt.Fprintf(c.out, "  username: %s  name: %s\n", orDash(v.Username), orDash(v.Name))
	}
	if v.Step == flow.StepAwaitingCode {
		fmt.Fprintf(c.out, "  code: %s  verified: %t\n", orDash(v.Code), v.Verified)
		if v.Countdown.Expired {
			fmt.Fprintln(c.out, "  countdown: expired")
		} else {
			fmt.Fprintf(c.out, "  countdown: %s\n", v.Countdown.Display)
		}
		if v.ResumeQuery != "" {
			fmt.Fprintf(c.out, "  resume: ?%s\n", v.ResumeQuery)
		}
	}
	if v.Message != nil {
		mark := "ok"
		if v.Message.Type == flow.MessageError {
			mark = "error"
		}
		fmt.Fprintf(c.out, "  %s: %s\n", mark, v.Message.Text)
	}
	if v.Result != nil && v.Result.RedirectTo != "" {
		fmt.Fprintf(c.out, "  continue at %s in %dms\n", v.Result.RedirectTo, v.Result.RedirectAfterMS)
	}
	if acts := actionNames(v.Actions); len(acts) > 0 {
		fmt.Fprintf(c.out, "  next: %s\n", strings.Join(acts, ", "))
	}

	if c.timer != nil {
		c.timer.Arm(v.Step == flow.StepAwaitingCode && f.Session.Issued(), f.Session.IssuedAt)
	}
}

func (c *console) report(err error) {
	switch {
	case flow.IsValidation(err), errors.Is(err, ports.ErrUpstream):
		// the flow message carries the text
	case errors.Is(err, flow.ErrNotFound):
		fmt.Fprintln(c.out, "the flow expired, start again")
	default:
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

// discard drops the flow on exit so late results are ignored.
func (c *console) discard(ctx context.Context) {
	_ = c.svc.Discard(ctx, c.id)
}

func actionNames(a flow.Actions) []string {
	var out []string
	if a.CanSend {
		out = append(out, "send")
	}
	if a.CanResend {
		out = append(out, "send (resend)")
	}
	if a.CodeEditable {
		out = append(out, "code")
	}
	if a.CanVerify {
		out = append(out, "verify")
	}
	if a.CanSubmit {
		out = append(out, "submit")
	}
	if a.CanBack {
		out = append(out, "back")
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
