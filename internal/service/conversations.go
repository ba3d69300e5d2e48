package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"medqa/internal/conversation"
	"medqa/internal/coordinator"
	"medqa/internal/prompt"
	"medqa/pkg/types"
)

const titleMax = 60

// HistoryOf turns stored exchanges into prompt history. Failed exchanges and
// exchanges without an answer are skipped so every kept user turn is paired.
func HistoryOf(c conversation.Conversation) []prompt.Turn {
	var out []prompt.Turn
	for _, ex := range c.Exchanges {
		if ex.Status == conversation.StatusFailed || strings.TrimSpace(ex.Answer) == "" {
			continue
		}
		out = append(out,
			prompt.Turn{Role: prompt.RoleUser, Text: ex.Query},
			prompt.Turn{Role: prompt.RoleAssistant, Text: ex.Answer})
	}
	return out
}

// ExchangeFor decides how a finished job is stored. A cancelled job that
// streamed nothing is discarded (ok=false).
func ExchangeFor(query string, passages []string, o coordinator.Outcome) (conversation.Exchange, bool) {
	ex := conversation.Exchange{Query: query, Answer: o.Text, Passages: passages}
	switch o.State {
	case coordinator.StateCompleted:
		ex.Status = conversation.StatusComplete
	case coordinator.StateCancelled:
		if !o.HadPartial {
			return conversation.Exchange{}, false
		}
		ex.Status = conversation.StatusInterrupted
	default:
		ex.Status = conversation.StatusFailed
	}
	return ex, true
}

// recordingSink forwards a stream and appends the exchange to a conversation
// before forwarding Close, so the consumer sees the stored state.
type recordingSink struct {
	next     coordinator.Sink
	store    conversation.Store
	id       string
	query    string
	passages []string
	log      zerolog.Logger
}

func (s *recordingSink) Deliver(e coordinator.Event) {
	if e.Kind == coordinator.KindRetrievedDocs {
		s.passages = s.passages[:0]
		for _, p := range e.Passages {
			s.passages = append(s.passages, p.Text)
		}
	}
	s.next.Deliver(e)
}

func (s *recordingSink) Fail(err *coordinator.GenerationError) { s.next.Fail(err) }

func (s *recordingSink) Close(o coordinator.Outcome) {
	if ex, ok := ExchangeFor(s.query, s.passages, o); ok {
		if err := s.store.Append(context.Background(), s.id, ex); err != nil {
			s.log.Error().Err(err).Str("conversation", s.id).Uint64("job", o.JobID).Str("event", "append_failed").Msg("service")
		}
	}
	s.next.Close(o)
}

// CreateConversation starts an empty conversation.
func (s *Service) CreateConversation(ctx context.Context, title string) (types.Conversation, error) {
	if s.store == nil {
		return types.Conversation{}, errConversationsDisabled
	}
	title = strings.TrimSpace(title)
	if len(title) > titleMax {
		title = title[:titleMax]
	}
	c, err := s.store.Create(ctx, title)
	if err != nil {
		return types.Conversation{}, err
	}
	return toWire(c), nil
}

// Conversation returns a stored conversation.
func (s *Service) Conversation(ctx context.Context, id string) (types.Conversation, error) {
	if s.store == nil {
		return types.Conversation{}, errConversationsDisabled
	}
	c, err := s.store.Load(ctx, id)
	if err != nil {
		return types.Conversation{}, err
	}
	return toWire(c), nil
}

// DeleteConversation removes a conversation and its exchanges.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	if s.store == nil {
		return errConversationsDisabled
	}
	return s.store.Delete(ctx, id)
}

// Conversations lists stored conversations, most recent first.
func (s *Service) Conversations(ctx context.Context) ([]types.ConversationSummary, error) {
	if s.store == nil {
		return nil, errConversationsDisabled
	}
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ConversationSummary, 0, len(list))
	for _, c := range list {
		out = append(out, types.ConversationSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt.Unix()})
	}
	return out, nil
}

func toWire(c conversation.Conversation) types.Conversation {
	out := types.Conversation{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt.Unix(), Exchanges: []types.Exchange{}}
	for _, ex := range c.Exchanges {
		out.Exchanges = append(out.Exchanges, types.Exchange{
			Query:    ex.Query,
			Answer:   ex.Answer,
			Passages: ex.Passages,
			Status:   string(ex.Status),
		})
	}
	return out
}
