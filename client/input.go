package client

import (
	"sync"

	"garagearena/protocol"
)

// InputSource 本地方向键状态的来源（键盘、脚本、测试桩）
type InputSource interface {
	Pressed() protocol.PlayerInput
}

// InputFunc 函数适配为 InputSource
type InputFunc func() protocol.PlayerInput

func (f InputFunc) Pressed() protocol.PlayerInput { return f() }

// KeyState 可被其他协程更新的按键状态，Tick 线程读取
type KeyState struct {
	mu sync.Mutex
	in protocol.PlayerInput
}

func (k *KeyState) Set(in protocol.PlayerInput) {
	k.mu.Lock()
	k.in = in
	k.mu.Unlock()
}

// Update 原地修改按键状态
func (k *KeyState) Update(fn func(in *protocol.PlayerInput)) {
	k.mu.Lock()
	fn(&k.in)
	k.mu.Unlock()
}

func (k *KeyState) Pressed() protocol.PlayerInput {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.in
}
