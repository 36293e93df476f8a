package security

import "testing"

func TestTextSanitizer_Clean(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "プレーンテキストはそのまま", in: "Alice", want: "Alice"},
		{name: "空文字列", in: "", want: ""},
		{name: "前後の空白を除去", in: "  Bob  ", want: "Bob"},
		{name: "タグを除去", in: "<b>Carol</b>", want: "Carol"},
		{name: "scriptは中身ごと除去", in: "Dave<script>alert(1)</script>", want: "Dave"},
		{name: "アポストロフィはエスケープされたまま残らない", in: "O'Brien", want: "O'Brien"},
		{name: "アンパサンド", in: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "イベント属性付きタグ", in: `<img src=x onerror="alert(1)">Eve`, want: "Eve"},
		{name: "タグがなければ文字参照はそのまま", in: "A &amp; B", want: "A &amp; B"},
		{name: "タグがあれば文字参照は復号", in: "<b>A &amp; B</b>", want: "A & B"},
		{name: "不等号だけ", in: "a < b", want: "a < b"},
		{name: "復号で現れたタグも除去", in: "<b></b>&lt;i&gt;", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_CleanIsIdempotent(t *testing.T) {
	s := NewTextSanitizer()

	inputs := []string{"Tom &lt;3", "<b>A &amp; B</b>", "<b>x</b>&lt;i&gt;y", "a < b", " Ann "}
	for _, in := range inputs {
		once := s.Clean(in)
		if twice := s.Clean(once); twice != once {
			t.Errorf("Clean(Clean(%q)) = %q, want %q", in, twice, once)
		}
	}
}
