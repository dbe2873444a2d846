package model

// Schedule はユーザーが作成する予定（Todo項目）を表す。
// UserID は作成時に解決された所有ユーザーで、nullにはならない。
type Schedule struct {
	ID      string
	Title   string
	Content string
	UserID  string
	Timestamps
}

// Comment は予定に付けられたコメントを表す。
type Comment struct {
	ID         string
	Content    string
	UserID     string
	ScheduleID string
	Timestamps
}
