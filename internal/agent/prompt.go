package agent

import (
	"fmt"
	"strings"

	"chorus/internal/feed"
	"chorus/internal/store"
)

// PromptData is the value prompt templates execute against.
type PromptData struct {
	Handle string
	Name   string
	Item   *feed.Item  // original mode
	Target *TargetData // reply mode
}

// TargetData describes the post being replied to.
type TargetData struct {
	ID          string
	Handle      string
	Type        string
	Description string // DescribeType(Type)
	Text        string // full quoted source
	Excerpt     string // Text cut to the behavior's excerpt length
}

func renderPrompt(b *Behavior, p *Profile, item *feed.Item, target *store.Post) (string, error) {
	if b.Prompt == nil {
		return "", fmt.Errorf("behavior %s has no prompt", b.Name)
	}
	data := PromptData{Handle: p.Handle, Name: p.Name, Item: item}
	if target != nil {
		n := b.ExcerptRunes
		if n <= 0 {
			n = defaultExcerptRunes
		}
		src := replySource(target)
		data.Target = &TargetData{
			ID:          target.ID,
			Handle:      target.AuthorHandle,
			Type:        target.Type,
			Description: DescribeType(target.Type),
			Text:        src,
			Excerpt:     truncateRunes(src, n),
		}
	}

	var sb strings.Builder
	if err := b.Prompt.Execute(&sb, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}
