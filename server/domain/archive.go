package domain

import (
	"context"
	"time"
)

//go:generate go tool mockgen -destination=./mocks/archiver_mock.go -package=mocks . Archiver

// Archiver は終了したセッションを外部に永続化します。ルームの状態を変更することはありません。
type Archiver interface {
	Archive(ctx context.Context, record ArchiveRecord) error
}

type ArchiveRecord struct {
	RoomID      RoomID
	CreatedAt   time.Time
	FinalizedAt time.Time
	GameRecord
}

type nopArchiver struct{}

func (nopArchiver) Archive(context.Context, ArchiveRecord) error { return nil }
