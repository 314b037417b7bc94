package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/fanflow/core"
	"github.com/hupe1980/fanflow/llm"
	"github.com/hupe1980/fanflow/logging"
)

// DefaultInstruction is the system instruction used when no custom
// classification instruction is configured.
const DefaultInstruction = `You are a precise intent classifier that analyzes input requests to determine their intended action or purpose.
You are provided with a request and a list of intents to choose from.
You can choose one or more intents, or choose none if no intent is appropriate.`

// Intent describes one recognizable intention a request can carry.
type Intent struct {
	// Name is the unique identifier of the intent.
	Name string `json:"name"`

	// Description explains what kind of requests carry this intent.
	Description string `json:"description,omitempty"`

	// Examples are sample requests matching this intent.
	Examples []string `json:"examples,omitempty"`

	// Metadata holds additional caller-defined attributes.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Classification is one matched intent with its confidence.
type Classification struct {
	// Intent is the name of the matched intent.
	Intent string `json:"intent" description:"Name of the matched intent"`

	// Score is the confidence of the match between 0 and 1.
	Score float64 `json:"p_score" description:"Confidence score between 0 and 1"`

	// Entities holds key entities extracted from the request, if any.
	Entities map[string]string `json:"extracted_entities,omitempty" description:"Key entities extracted from the request"`
}

// classificationResponse is the wire shape the classifying unit produces.
type classificationResponse struct {
	Classifications []Classification `json:"classifications" description:"Matched intents ordered by confidence"`
}

// Options configures a Classifier.
type Options struct {
	// Instruction overrides DefaultInstruction as the classification
	// guidance embedded in every request.
	Instruction string

	// Logger receives classification diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Classifier matches free-form requests against a fixed set of intents using
// a generation unit. The unit is asked for a structured verdict, so any
// llm.Unit works: a single agent, or a parallel voting workflow for higher
// confidence.
type Classifier struct {
	unit        llm.Unit
	intents     []Intent
	byName      map[string]Intent
	instruction string
	logger      logging.Logger
}

// New creates a classifier over the given intents. At least one intent is
// required; duplicate intent names are a configuration error.
func New(unit llm.Unit, intents []Intent, optFns ...func(o *Options)) (*Classifier, error) {
	if unit == nil {
		return nil, core.NewConfigError("classifier unit must not be nil")
	}
	if len(intents) == 0 {
		return nil, core.NewConfigError("at least one intent is required")
	}

	opts := Options{
		Instruction: DefaultInstruction,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	byName := make(map[string]Intent, len(intents))
	for _, intent := range intents {
		if intent.Name == "" {
			return nil, core.NewConfigError("intent name must not be empty")
		}
		if _, ok := byName[intent.Name]; ok {
			return nil, core.NewConfigError("duplicate intent name %q", intent.Name)
		}
		byName[intent.Name] = intent
	}

	cloned := make([]Intent, len(intents))
	copy(cloned, intents)

	return &Classifier{
		unit:        unit,
		intents:     cloned,
		byName:      byName,
		instruction: opts.Instruction,
		logger:      opts.Logger,
	}, nil
}

// Intents returns a copy of the configured intents.
func (c *Classifier) Intents() []Intent {
	intents := make([]Intent, len(c.intents))
	copy(intents, c.intents)
	return intents
}

// Classify matches the request against the configured intents and returns up
// to topK classifications ordered by descending confidence. topK < 1 returns
// all matches. Matches naming unknown intents are discarded rather than
// surfaced, so callers can trust every returned name.
func (c *Classifier) Classify(ctx context.Context, request string, topK int) ([]Classification, error) {
	var resp classificationResponse
	if err := c.unit.GenerateStructured(ctx, c.buildMessage(request), core.GenerateParams{}, &resp); err != nil {
		return nil, fmt.Errorf("intent classification: %w", err)
	}

	matches := make([]Classification, 0, len(resp.Classifications))
	for _, m := range resp.Classifications {
		if _, ok := c.byName[m.Intent]; !ok {
			c.logger.Warn("classifier returned unknown intent", "intent", m.Intent)
			continue
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	c.logger.Debug("classification completed", "request_len", len(request), "matches", len(matches))

	return matches, nil
}

func (c *Classifier) buildMessage(request string) core.Message {
	var sb strings.Builder
	sb.WriteString(c.instruction)
	sb.WriteString("\n\nAvailable intents:\n\n")

	for _, intent := range c.intents {
		fmt.Fprintf(&sb, "Intent: %s\n", intent.Name)
		if intent.Description != "" {
			fmt.Fprintf(&sb, "Description: %s\n", intent.Description)
		}
		for _, ex := range intent.Examples {
			fmt.Fprintf(&sb, "Example: %s\n", ex)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Request: %s", request)

	return core.Text(sb.String())
}
