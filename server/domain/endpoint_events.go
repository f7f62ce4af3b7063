package domain

type endpointEventKind uint8

const (
	// unknown
	unknown endpointEventKind = iota

	// I/O
	evPong       // pong を受信した
	evReadError  // 読み込みに失敗した
	evWriteError // 書き込みに失敗した
	evDropped    // 書き込みキューが満杯で配信を落とした

	// ctrl
	evClose // セッション終了
)

type endpointEvent struct {
	kind endpointEventKind
	code int32
	err  error
}
