package fetcher

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// CollapseSSE folds a server-sent event stream of chat-completion chunks
// into one body shaped {"choices":[{"message":{"content":"..."}}]}.
// OpenAI-style delta.content and Anthropic-style content_block_delta text
// chunks are both understood; other events are ignored.
func CollapseSSE(stream string) string {
	var content strings.Builder
	sc := bufio.NewScanner(strings.NewReader(stream))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" || !gjson.Valid(payload) {
			continue
		}
		if d := gjson.Get(payload, "choices.0.delta.content"); d.Exists() {
			content.WriteString(d.String())
			continue
		}
		if d := gjson.Get(payload, "choices.0.message.content"); d.Exists() {
			content.WriteString(d.String())
			continue
		}
		if gjson.Get(payload, "type").String() == "content_block_delta" {
			content.WriteString(gjson.Get(payload, "delta.text").String())
		}
	}

	out, _ := json.Marshal(collapsed{Choices: []collapsedChoice{{Message: collapsedMessage{Content: content.String()}}}})
	return string(out)
}

type collapsed struct {
	Choices []collapsedChoice `json:"choices"`
}

type collapsedChoice struct {
	Message collapsedMessage `json:"message"`
}

type collapsedMessage struct {
	Content string `json:"content"`
}
