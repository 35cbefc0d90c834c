// Package events 进程内事件分发
package events

import (
	"sync"

	"github.com/bililive-go/livearchiver/src/pkg/sentry"
)

type EventType string

type Event struct {
	Type   EventType
	Object interface{}
	// Key 非空时，同一 Key 的事件按分发顺序逐个处理
	Key string
}

// Keyer 由事件对象实现，NewEvent 用它填充 Event.Key
type Keyer interface {
	EventKey() string
}

func NewEvent(eventType EventType, object interface{}) *Event {
	event := &Event{Type: eventType, Object: object}
	if k, ok := object.(Keyer); ok {
		event.Key = k.EventKey()
	}
	return event
}

type EventHandler func(event *Event)

type EventListener struct {
	Handler EventHandler
}

func NewEventListener(handler EventHandler) *EventListener {
	return &EventListener{Handler: handler}
}

// Dispatcher 事件分发器
// 没有 Key 的事件，每个监听器在独立的 goroutine 中执行；
// 有 Key 的事件进入该 Key 的队列，前一个事件的监听器全部返回后才处理下一个。
// panic 会被恢复并上报
type Dispatcher interface {
	AddEventListener(eventType EventType, listener *EventListener)
	RemoveEventListener(eventType EventType, listener *EventListener)
	RemoveAllEventListener(eventType EventType)
	DispatchEvent(event *Event)
	// Wait 等待所有已分发的监听器执行完毕
	Wait()
}

type dispatcher struct {
	mu    sync.RWMutex
	saver map[EventType]map[*EventListener]struct{}
	wg    sync.WaitGroup

	qmu    sync.Mutex
	queues map[string][]func()
}

func NewDispatcher() Dispatcher {
	return &dispatcher{
		saver:  make(map[EventType]map[*EventListener]struct{}),
		queues: make(map[string][]func()),
	}
}

func (d *dispatcher) AddEventListener(eventType EventType, listener *EventListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	listeners, ok := d.saver[eventType]
	if !ok {
		listeners = make(map[*EventListener]struct{})
		d.saver[eventType] = listeners
	}
	listeners[listener] = struct{}{}
}

func (d *dispatcher) RemoveEventListener(eventType EventType, listener *EventListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if listeners, ok := d.saver[eventType]; ok {
		delete(listeners, listener)
	}
}

func (d *dispatcher) RemoveAllEventListener(eventType EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.saver, eventType)
}

func (d *dispatcher) handlers(eventType EventType) []EventHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	handlers := make([]EventHandler, 0, len(d.saver[eventType]))
	for listener := range d.saver[eventType] {
		handlers = append(handlers, listener.Handler)
	}
	return handlers
}

func (d *dispatcher) DispatchEvent(event *Event) {
	handlers := d.handlers(event.Type)
	if len(handlers) == 0 {
		return
	}
	if event.Key == "" {
		for _, handler := range handlers {
			handler := handler
			d.wg.Add(1)
			sentry.Go(func() {
				defer d.wg.Done()
				handler(event)
			})
		}
		return
	}

	d.wg.Add(1)
	d.enqueue(event.Key, func() {
		defer d.wg.Done()
		for _, handler := range handlers {
			runSafe(handler, event)
		}
	})
}

// enqueue 该 Key 没有处理中的 goroutine 时启动一个，队列清空后退出
func (d *dispatcher) enqueue(key string, task func()) {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	pending, running := d.queues[key]
	d.queues[key] = append(pending, task)
	if !running {
		sentry.Go(func() { d.drain(key) })
	}
}

func (d *dispatcher) drain(key string) {
	for {
		d.qmu.Lock()
		pending := d.queues[key]
		if len(pending) == 0 {
			delete(d.queues, key)
			d.qmu.Unlock()
			return
		}
		task := pending[0]
		d.queues[key] = pending[1:]
		d.qmu.Unlock()
		task()
	}
}

func runSafe(handler EventHandler, event *Event) {
	defer sentry.Recover()
	handler(event)
}

func (d *dispatcher) Wait() {
	d.wg.Wait()
}
