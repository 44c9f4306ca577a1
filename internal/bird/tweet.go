package bird

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/xreply/internal/candidate"
)

// tweet mirrors the JSON records bird prints. Timelines carry "author";
// replies carry "user". Either may be absent.
type tweet struct {
	ID              string  `json:"id"`
	Text            string  `json:"text"`
	CreatedAt       string  `json:"createdAt"`
	Author          *author `json:"author"`
	AuthorID        string  `json:"authorId"`
	User            *user   `json:"user"`
	LikeCount       *int    `json:"likeCount"`
	ReplyCount      *int    `json:"replyCount"`
	InReplyToUserID string  `json:"inReplyToUserId"`
	IsRetweet       bool    `json:"isRetweet"`
	IsPinned        bool    `json:"isPinned"`
	URL             string  `json:"url"`
}

type author struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

type user struct {
	ScreenName string `json:"screenName"`
	Name       string `json:"name"`
	ID         string `json:"id"`
}

// timeLayouts are the timestamp formats bird has been seen to emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RubyDate, // "Mon Jan 02 15:04:05 -0700 2006", the classic API format
	"2006-01-02 15:04:05",
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func (t tweet) candidate() candidate.Candidate {
	c := candidate.Candidate{
		ID:              t.ID,
		Text:            t.Text,
		CreatedAt:       parseTime(t.CreatedAt),
		InReplyToUserID: t.InReplyToUserID,
		IsPinned:        t.IsPinned,
		IsRepost:        t.IsRetweet || candidate.IsRepostText(t.Text),
		URL:             t.URL,
		AuthorID:        t.AuthorID,
	}
	switch {
	case t.Author != nil && t.Author.Username != "":
		c.AuthorHandle = t.Author.Username
		c.AuthorName = t.Author.Name
	case t.User != nil && t.User.ScreenName != "":
		c.AuthorHandle = t.User.ScreenName
		c.AuthorName = t.User.Name
	}
	if c.AuthorID == "" && t.User != nil {
		c.AuthorID = t.User.ID
	}
	if t.LikeCount != nil || t.ReplyCount != nil {
		e := &candidate.Engagement{}
		if t.LikeCount != nil {
			e.Likes = *t.LikeCount
		}
		if t.ReplyCount != nil {
			e.Replies = *t.ReplyCount
		}
		c.Engagement = e
	}
	if c.URL == "" && c.AuthorHandle != "" && c.ID != "" {
		c.URL = fmt.Sprintf("https://x.com/%s/status/%s", c.AuthorHandle, c.ID)
	}
	return c
}

// decodeTweets accepts a bare array, an object wrapping one under "tweets",
// or an empty document.
func decodeTweets(b []byte) ([]tweet, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var list []tweet
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Tweets []tweet `json:"tweets"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding tweets: %w", err)
	}
	return wrapped.Tweets, nil
}
