package broadcast

type (
	sendDelegate  func([]byte) error
	closeDelegate func() error
)

type mockSubscriber struct {
	sendFn  sendDelegate
	closeFn closeDelegate
}

func (m *mockSubscriber) Send(data []byte) error {
	if m.sendFn != nil {
		return m.sendFn(data)
	}

	return nil
}

func (m *mockSubscriber) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}

	return nil
}
