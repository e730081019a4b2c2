package chat

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/careassist/hospital-assistant/internal/classifier"
	"github.com/careassist/hospital-assistant/internal/fallback"
	"github.com/careassist/hospital-assistant/internal/knowledge"
	"github.com/careassist/hospital-assistant/internal/language"
	"github.com/careassist/hospital-assistant/internal/privacy"
	"github.com/careassist/hospital-assistant/internal/response"
	"github.com/careassist/hospital-assistant/internal/sentiment"
)

var (
	// ErrEmptyResponse is returned when the pipeline composed no text.
	ErrEmptyResponse = errors.New("chat: empty response")

	// ErrPipelinePanic is returned when a pipeline stage panicked.
	ErrPipelinePanic = errors.New("chat: pipeline panic")
)

// Reply is the outcome of one pass through the pipeline
type Reply struct {
	Text      string
	Intent    classifier.MatchedIntent
	Sentiment sentiment.Result
}

// Interfaces for dependencies
type IntentClassifier interface {
	Classify(utterance string) classifier.MatchedIntent
}

type SentimentClassifier interface {
	Classify(utterance string) sentiment.Result
}

// Engine runs sentiment and intent classification and composes the reply.
// It holds no per-session state and is safe for concurrent use.
type Engine struct {
	intents   IntentClassifier
	sentiment SentimentClassifier
	logger    *zap.Logger
}

// NewEngine creates a pipeline engine over the given classifiers
func NewEngine(intents IntentClassifier, mood SentimentClassifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		intents:   intents,
		sentiment: mood,
		logger:    logger,
	}
}

// NewDefaultEngine wires both classifiers over kb with default settings.
func NewDefaultEngine(kb *knowledge.Base, cfg sentiment.Config, logger *zap.Logger) *Engine {
	return NewEngine(classifier.NewClassifier(kb), sentiment.NewClassifier(kb, cfg), logger)
}

// Reply classifies text and composes the assistant answer in lang.
func (e *Engine) Reply(text, lang string) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("reply pipeline panicked", zap.Any("panic", r))
			reply = Reply{}
			err = fmt.Errorf("%w: %v", ErrPipelinePanic, r)
		}
	}()

	lang = language.Validate(lang).Code

	mood := e.sentiment.Classify(text)
	intent := e.intents.Classify(text)

	if intent.Tag == classifier.NoMatchTag {
		intent.Response = fallback.NoMatch(lang).Content
	}

	composed := strings.TrimSpace(response.Compose(intent, mood, lang))
	if composed == "" {
		e.logger.Warn("empty reply composed",
			zap.String("intent", intent.Tag),
			zap.String("text", privacy.SanitizeForLogging(text)),
		)
		return Reply{}, ErrEmptyResponse
	}

	e.logger.Debug("reply composed",
		zap.String("intent", intent.Tag),
		zap.Float64("confidence", intent.Confidence),
		zap.Bool("emergency", intent.IsEmergency),
		zap.String("sentiment", string(mood.Label)),
		zap.String("text", privacy.SanitizeForLogging(text)),
	)

	return Reply{
		Text:      composed,
		Intent:    intent,
		Sentiment: mood,
	}, nil
}
