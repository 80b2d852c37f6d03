// Package shardstore fetches and caches content shards.
//
// A shard is a single published JSON document covering one subject area,
// nesting lessons under the subject and topics under lessons. Shards are
// immutable once published; the store reloads them only on cache expiry or
// explicit invalidation.
package shardstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// TopicRecord is one searchable topic inside a shard. Content is opaque text
// searched by substring and regex, never parsed into a fixed schema.
type TopicRecord struct {
	Category string
	Subject  string
	Lesson   string
	Topic    string
	Content  string
}

// Shard is a decoded shard document with topics flattened in a stable order
// (lessons sorted by name, then topics sorted by name). The flattening order
// is the tie-break order for equal-score matches, so it must be
// deterministic.
type Shard struct {
	Name     string
	Category string
	Subject  string
	Topics   []TopicRecord
}

// shardDocument mirrors the published JSON nesting.
type shardDocument struct {
	Category string `json:"category"`
	Subject  struct {
		Name    string `json:"name"`
		Lessons map[string]struct {
			Topics map[string]struct {
				Content json.RawMessage `json:"content"`
			} `json:"topics"`
		} `json:"lessons"`
	} `json:"subject"`
}

// DecodeShard parses a shard document and flattens its topics.
func DecodeShard(name string, data []byte) (*Shard, error) {
	var doc shardDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("shard %s: decoding document: %w", name, err)
	}

	shard := &Shard{
		Name:     name,
		Category: doc.Category,
		Subject:  doc.Subject.Name,
	}

	lessonNames := make([]string, 0, len(doc.Subject.Lessons))
	for lesson := range doc.Subject.Lessons {
		lessonNames = append(lessonNames, lesson)
	}
	sort.Strings(lessonNames)

	for _, lesson := range lessonNames {
		topics := doc.Subject.Lessons[lesson].Topics
		topicNames := make([]string, 0, len(topics))
		for topic := range topics {
			topicNames = append(topicNames, topic)
		}
		sort.Strings(topicNames)

		for _, topic := range topicNames {
			shard.Topics = append(shard.Topics, TopicRecord{
				Category: doc.Category,
				Subject:  doc.Subject.Name,
				Lesson:   lesson,
				Topic:    topic,
				Content:  contentText(topics[topic].Content),
			})
		}
	}

	return shard, nil
}

// contentText renders opaque content as searchable text. Plain JSON strings
// are unquoted; any other JSON value is kept in its serialized form.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
