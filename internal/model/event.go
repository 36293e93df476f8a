package model

// Event は公開中のイベントを表す。
// Dateは YYYY-MM-DD 形式のカレンダー日付。
type Event struct {
	ID       string
	Title    string
	Date     string
	Venue    string
	ImageURL string
}
