package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdScrapeNow    CommandType = "scrape_now"
	CmdScrapeRegion CommandType = "scrape_region"
	CmdScoreNow     CommandType = "score_now"
	CmdRunMedia     CommandType = "run_media"
	CmdPause        CommandType = "pause"
	CmdResume       CommandType = "resume"
	CmdCancel       CommandType = "cancel"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Keyword string `json:"keyword,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
