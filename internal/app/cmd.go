package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
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

// MigrateDirection はマイグレーションの適用方向。
type MigrateDirection string

const (
	// MigrateUp は未適用のマイグレーションを全て適用する。
	MigrateUp MigrateDirection = "up"
	// MigrateDown は指定ステップ数だけロールバックする。
	MigrateDown MigrateDirection = "down"
)

// MigrateOptions はmigrateサブコマンドの引数を解析した結果。
type MigrateOptions struct {
	Direction MigrateDirection
	Steps     int // downのときのみ有効
}

// ParseMigrateArgs はmigrateに続く引数を解析する。
//
//	migrate            → up
//	migrate up         → up
//	migrate down       → down 1
//	migrate down 3     → down 3
func ParseMigrateArgs(args []string) (MigrateOptions, error) {
	if len(args) == 0 {
		return MigrateOptions{Direction: MigrateUp}, nil
	}

	switch MigrateDirection(args[0]) {
	case MigrateUp:
		if len(args) > 1 {
			return MigrateOptions{}, fmt.Errorf("migrate up takes no arguments: %v", args[1:])
		}
		return MigrateOptions{Direction: MigrateUp}, nil
	case MigrateDown:
		opts := MigrateOptions{Direction: MigrateDown, Steps: 1}
		if len(args) > 2 {
			return MigrateOptions{}, fmt.Errorf("too many arguments for migrate down: %v", args[1:])
		}
		if len(args) == 2 {
			steps, err := strconv.Atoi(args[1])
			if err != nil || steps <= 0 {
				return MigrateOptions{}, fmt.Errorf("invalid migrate down steps: %q", args[1])
			}
			opts.Steps = steps
		}
		return opts, nil
	default:
		return MigrateOptions{}, fmt.Errorf("unknown migrate direction: %q", args[0])
	}
}
