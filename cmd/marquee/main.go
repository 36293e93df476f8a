// Command marquee はイベント告知サイトのバックエンドを起動する。
//
// 使い方:
//
//	marquee [serve]            APIサーバー
//	marquee worker             期限切れセッションの削除
//	marquee migrate [up|down]  マイグレーション
//	marquee healthcheck        コンテナのヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/marquee/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
