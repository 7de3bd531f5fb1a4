// internal/narrator/prompt.go

package narrator

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/realms/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt is the narrator persona.
const SystemPrompt = "You are a creative dungeon master who narrates the adventure"

// Simple wraps a single free-form message with the narrator persona.
func Simple(message string) Prompt {
	return Prompt{
		System: SystemPrompt,
		Turns:  []Turn{{Role: openai.ChatMessageRoleUser, Content: message}},
	}
}

// BuildPrompt frames the next narration: the adventure and its cast go into the system
// message, prior messages become chat turns and message is the newest player line.
func BuildPrompt(room *models.Room, history []models.Message, speaker models.Player, message string) Prompt {
	p := Prompt{System: roomContext(room)}
	for _, m := range history {
		p.Turns = append(p.Turns, turnFor(m))
	}
	p.Turns = append(p.Turns, Turn{
		Role:    openai.ChatMessageRoleUser,
		Content: attribute(speaker.Username, speaker.Character.Name, message),
	})
	return p
}

// OpeningPrompt asks for the scene that opens the adventure.
func OpeningPrompt(room *models.Room) Prompt {
	return Prompt{
		System: roomContext(room),
		Turns: []Turn{{
			Role: openai.ChatMessageRoleUser,
			Content: "The adventure begins now. Set the opening scene for the party, introduce each " +
				"character by name and end by asking the players what they do.",
		}},
	}
}

func turnFor(m models.Message) Turn {
	if m.UserID == models.NarratorUserID {
		return Turn{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
	}
	return Turn{Role: openai.ChatMessageRoleUser, Content: attribute(m.Username, m.CharacterName, m.Content)}
}

func attribute(username, character, content string) string {
	switch {
	case character != "":
		return fmt.Sprintf("%s (playing %s): %s", username, character, content)
	case username != "":
		return fmt.Sprintf("%s: %s", username, content)
	default:
		return content
	}
}

func roomContext(room *models.Room) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString(".\n")

	field := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	field("Adventure", room.AdventureTitle)
	field("Setting", room.AdventureSetting)
	field("World lore", room.WorldLore)
	field("Plot", room.Plot)
	field("Context", room.Context)

	var cast []string
	for _, p := range room.Players {
		if !p.Active() || p.Character.Name == "" {
			continue
		}
		line := fmt.Sprintf("- %s, a %s, played by %s", p.Character.Name, p.Character.Type, p.Username)
		if bs := strings.TrimSpace(p.Character.Backstory); bs != "" {
			line += ". Backstory: " + bs
		}
		cast = append(cast, line)
	}
	if len(cast) > 0 {
		b.WriteString("Characters:\n")
		b.WriteString(strings.Join(cast, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("Keep the story consistent with the setting and respond to the players' actions.")
	return b.String()
}
