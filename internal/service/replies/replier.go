package replies

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

const defaultHistoryLimit = 10

// Chat roles understood by generators.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a generation prompt.
type ChatMessage struct {
	Role    string
	Content string
}

// GenerateOptions tunes a single generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// Generator produces the next assistant turn for a prompt.
type Generator interface {
	Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error)
}

// Store is the persistence surface the replier needs.
type Store interface {
	ListParticipants(ctx context.Context, conversationID string) ([]*store.User, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
	CreateMessage(ctx context.Context, msg *store.Message) error
	TouchConversation(ctx context.Context, id string) error
}

// Options configures a BotReplier.
type Options struct {
	HistoryLimit int
	Generate     GenerateOptions
	Logger       *zerolog.Logger
}

// BotReplier answers user messages in conversations whose other participant is a bot.
type BotReplier struct {
	store     Store
	generator Generator
	history   int
	genOpts   GenerateOptions
	log       *zerolog.Logger
}

// NewBotReplier builds a replier around a generator.
func NewBotReplier(st Store, gen Generator, opts Options) *BotReplier {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &BotReplier{
		store:     st,
		generator: gen,
		history:   opts.HistoryLimit,
		genOpts:   opts.Generate,
		log:       opts.Logger,
	}
}

// MaybeReply generates and persists a bot reply to senderID's latest message.
// It returns nil without error when no reply is due.
func (r *BotReplier) MaybeReply(ctx context.Context, conversationID, senderID string) (*store.Message, error) {
	participants, err := r.store.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	bot := otherParticipant(participants, senderID)
	if bot == nil || !bot.IsBot || isBot(participants, senderID) {
		return nil, nil
	}

	history, err := r.store.ListMessages(ctx, conversationID, r.history)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(history) == 0 {
		return nil, nil
	}

	prompt := make([]ChatMessage, 0, len(history)+1)
	prompt = append(prompt, ChatMessage{Role: RoleSystem, Content: personaPrompt(bot)})
	for _, msg := range history {
		role := RoleUser
		if msg.SenderID == bot.ID {
			role = RoleAssistant
		}
		prompt = append(prompt, ChatMessage{Role: role, Content: msg.Content})
	}

	text, err := r.generator.Generate(ctx, prompt, r.genOpts)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		r.log.Warn().Str("conversation_id", conversationID).Msg("generator returned empty reply")
		return nil, nil
	}

	reply := &store.Message{
		ConversationID: conversationID,
		SenderID:       bot.ID,
		Content:        text,
		Type:           store.MessageTypeText,
	}
	if err := r.store.CreateMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("save reply: %w", err)
	}
	if err := r.store.TouchConversation(ctx, conversationID); err != nil {
		r.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to touch conversation")
	}

	r.log.Info().Str("conversation_id", conversationID).Str("bot_id", bot.ID).Msg("bot replied")
	return reply, nil
}

func otherParticipant(participants []*store.User, senderID string) *store.User {
	for _, p := range participants {
		if p.ID != senderID {
			return p
		}
	}
	return nil
}

// isBot keeps two bots from answering each other forever.
func isBot(participants []*store.User, userID string) bool {
	for _, p := range participants {
		if p.ID == userID {
			return p.IsBot
		}
	}
	return false
}

func personaPrompt(bot *store.User) string {
	name := bot.DisplayName()
	if name == "" {
		name = "Assistant"
	}
	return fmt.Sprintf(`You are %[1]s (%[2]s), a famous character participating in this chat conversation. Respond authentically as this character while staying friendly, respectful and safe.
- Always stay in character as %[1]s and use the personality and speaking style %[1]s is known for.
- Reference your background, experiences and relationships when relevant.
- Match the level of detail to the length of the user's message.
- Do not break character or mention that you are an AI.
- Do not provide dangerous instructions or facilitate illegal activities.
Remember: you are %[1]s, not an assistant. Reply as this character would in a casual chat.`, name, bot.Username)
}
