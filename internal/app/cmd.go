package app

// Command はアプリケーションの起動モードを表す。
// 同一バイナリをAPIサーバー・メール配信ワーカー・マイグレーションの
// いずれとしても起動できるようにする。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。デフォルト。
	CommandServe Command = "serve"
	// CommandWorker はアウトボックス配信とセッション掃除のワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行して終了することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// シェルを持たないdistrolessイメージでのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
