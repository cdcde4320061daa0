package pw

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mkranta/relink/internal/graph"
	"github.com/mkranta/relink/internal/log"
)

// RuleProperty is the link property naming the rule that created a link.
// It survives daemon restarts, so a fresh snapshot can tell managed links
// apart from ones users made by hand.
const RuleProperty = "relink.rule"

// Linker creates and destroys links through pw-link. Created links carry
// object.linger so they outlive this client's server connection, plus the
// owning rule name under RuleProperty.
type Linker struct{}

func NewLinker() *Linker {
	return &Linker{}
}

// CreateLink asks the server to connect the port pair. Returns
// ErrAlreadyLinked when the pair is already connected and a
// LinkRejectedError when the server refuses the link.
func (l *Linker) CreateLink(ctx context.Context, source, sink graph.Port, rule string) error {
	props := fmt.Sprintf("{ object.linger = true, %s = %q }", RuleProperty, rule)
	out, err := exec.CommandContext(ctx, "pw-link",
		"--props", props,
		strconv.FormatUint(uint64(source.ID), 10),
		strconv.FormatUint(uint64(sink.ID), 10),
	).CombinedOutput()
	if err == nil {
		return nil
	}
	reason := strings.TrimSpace(string(out))
	if reason == "" {
		reason = err.Error()
	}
	if strings.Contains(reason, "File exists") {
		return ErrAlreadyLinked
	}
	return &LinkRejectedError{Source: source.Alias(), Sink: sink.Alias(), Reason: reason}
}

// DestroyLink disconnects the port pair. A link that is already gone is
// not an error.
func (l *Linker) DestroyLink(ctx context.Context, source, sink graph.Port) error {
	out, err := exec.CommandContext(ctx, "pw-link", "--disconnect",
		strconv.FormatUint(uint64(source.ID), 10),
		strconv.FormatUint(uint64(sink.ID), 10),
	).CombinedOutput()
	if err == nil {
		return nil
	}
	reason := strings.TrimSpace(string(out))
	if reason == "" {
		reason = err.Error()
	}
	if strings.Contains(reason, "No such file") || strings.Contains(reason, "not found") {
		log.Debug(log.CatPW, "destroy of missing link ignored",
			"source", source.Alias(), "sink", sink.Alias())
		return nil
	}
	return fmt.Errorf("unlink %s -> %s: %s", source.Alias(), sink.Alias(), reason)
}
