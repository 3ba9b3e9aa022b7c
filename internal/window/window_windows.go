//go:build windows

package window

import (
	"context"
	"fmt"
	"image/color"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/example/frameview/internal/config"
	"github.com/example/frameview/internal/logging"
	"github.com/example/frameview/internal/surface"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procRegisterClassExW    = user32.NewProc("RegisterClassExW")
	procCreateWindowExW     = user32.NewProc("CreateWindowExW")
	procDefWindowProcW      = user32.NewProc("DefWindowProcW")
	procShowWindow          = user32.NewProc("ShowWindow")
	procUpdateWindow        = user32.NewProc("UpdateWindow")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
	procPostMessageW        = user32.NewProc("PostMessageW")
	procPostQuitMessage     = user32.NewProc("PostQuitMessage")
	procLoadCursorW         = user32.NewProc("LoadCursorW")
	procSetWindowPos        = user32.NewProc("SetWindowPos")
	procSetWindowTextW      = user32.NewProc("SetWindowTextW")
	procGetCursorPos        = user32.NewProc("GetCursorPos")
	procScreenToClient      = user32.NewProc("ScreenToClient")
	procCreatePopupMenu     = user32.NewProc("CreatePopupMenu")
	procAppendMenuW         = user32.NewProc("AppendMenuW")
	procTrackPopupMenu      = user32.NewProc("TrackPopupMenu")
	procDestroyMenu         = user32.NewProc("DestroyMenu")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procGetSystemMetrics    = user32.NewProc("GetSystemMetrics")
	procUpdateLayeredWindow = user32.NewProc("UpdateLayeredWindow")
)

const (
	WS_POPUP        = 0x80000000
	WS_VISIBLE      = 0x10000000
	WS_EX_LAYERED   = 0x00080000
	WS_EX_APPWINDOW = 0x00040000

	WM_DESTROY       = 0x0002
	WM_SIZE          = 0x0005
	WM_CLOSE         = 0x0010
	WM_GETMINMAXINFO = 0x0024
	WM_NCHITTEST     = 0x0084
	WM_NCRBUTTONUP   = 0x00A5
	WM_COMMAND       = 0x0111
	WM_RBUTTONUP     = 0x0205
	WM_SIZING        = 0x0214
	WM_APP_FRAME     = 0x8000 + 1

	HTTRANSPARENT = ^uintptr(0)
	HTCAPTION     = 2
	HTLEFT        = 10
	HTRIGHT       = 11
	HTTOP         = 12
	HTTOPLEFT     = 13
	HTTOPRIGHT    = 14
	HTBOTTOM      = 15
	HTBOTTOMLEFT  = 16
	HTBOTTOMRIGHT = 17

	SW_SHOW   = 5
	IDC_ARROW = 32512

	SM_CXSCREEN = 0
	SM_CYSCREEN = 1

	SWP_NOMOVE     = 0x0002
	SWP_NOSIZE     = 0x0001
	HWND_TOPMOST   = ^uintptr(0)
	HWND_NOTOPMOST = ^uintptr(1)

	MF_STRING     = 0x0000
	MF_CHECKED    = 0x0008
	MF_SEPARATOR  = 0x0800
	TPM_LEFTALIGN = 0x0000
	TPM_RETURNCMD = 0x0100

	IDM_QUIT       = 1001
	IDM_RECONNECT  = 1002
	IDM_ALWAYS_TOP = 1003

	WMSZ_LEFT        = 1
	WMSZ_RIGHT       = 2
	WMSZ_TOP         = 3
	WMSZ_TOPLEFT     = 4
	WMSZ_TOPRIGHT    = 5
	WMSZ_BOTTOM      = 6
	WMSZ_BOTTOMLEFT  = 7
	WMSZ_BOTTOMRIGHT = 8
)

const (
	paintInterval = 16 * time.Millisecond
	titleInterval = time.Second
)

type WNDCLASSEXW struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     windows.Handle
	HIcon         windows.Handle
	HCursor       windows.Handle
	HbrBackground windows.Handle
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       windows.Handle
}

type MSG struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      POINT
}

type POINT struct {
	X, Y int32
}

type RECT struct {
	Left, Top, Right, Bottom int32
}

type MINMAXINFO struct {
	PtReserved     POINT
	PtMaxSize      POINT
	PtMaxPosition  POINT
	PtMinTrackSize POINT
	PtMaxTrackSize POINT
}

type Window struct {
	hwnd windows.HWND
	cfg  config.Config
	opts Options

	// canvas and isTopmost belong to the window thread.
	canvas    *dib
	isTopmost bool

	// mu guards the last frame, written by the paint loop.
	mu      sync.Mutex
	frame   []byte
	frameW  int
	frameH  int
	pending atomic.Bool

	quitCh chan struct{}
	wg     sync.WaitGroup
}

var windowInstance *Window
var windowInstanceMu sync.Mutex

func New(cfg config.Config, opts Options) (*Window, error) {
	if opts.Frames == nil {
		return nil, fmt.Errorf("window: no frame source")
	}
	return &Window{
		cfg:    cfg,
		opts:   opts,
		frameW: 1,
		frameH: 1,
		quitCh: make(chan struct{}),
	}, nil
}

// Run creates the window and pumps its messages until the window is closed
// or ctx is done. It must be called from the goroutine that owns the window.
func (w *Window) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	windowInstanceMu.Lock()
	windowInstance = w
	windowInstanceMu.Unlock()

	className, _ := syscall.UTF16PtrFromString("FrameViewWindowClass")
	title, _ := syscall.UTF16PtrFromString(w.cfg.WindowTitle)

	cursor, _, _ := procLoadCursorW.Call(0, uintptr(IDC_ARROW))
	wcx := WNDCLASSEXW{
		CbSize:        uint32(unsafe.Sizeof(WNDCLASSEXW{})),
		LpfnWndProc:   syscall.NewCallback(wndProcCallback),
		HCursor:       windows.Handle(cursor),
		LpszClassName: className,
	}
	if ret, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wcx))); ret == 0 {
		return fmt.Errorf("RegisterClassExW failed: %v", err)
	}

	size := w.cfg.InitialSize
	screenW, _, _ := procGetSystemMetrics.Call(SM_CXSCREEN)
	screenH, _, _ := procGetSystemMetrics.Call(SM_CYSCREEN)
	x := (int(screenW) - size) / 2
	y := (int(screenH) - size) / 2

	hwnd, _, err := procCreateWindowExW.Call(
		uintptr(WS_EX_LAYERED|WS_EX_APPWINDOW),
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(title)),
		uintptr(WS_POPUP|WS_VISIBLE),
		uintptr(x), uintptr(y),
		uintptr(size), uintptr(size),
		0, 0, 0, 0,
	)
	if hwnd == 0 {
		return fmt.Errorf("CreateWindowExW failed: %v", err)
	}
	w.hwnd = windows.HWND(hwnd)

	canvas, err := newDIB(size, size)
	if err != nil {
		return err
	}
	w.canvas = canvas
	w.mu.Lock()
	w.frame = surface.CreateBlankFrame(1, 1, color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff})
	w.mu.Unlock()
	w.redraw()

	procShowWindow.Call(hwnd, SW_SHOW)
	procUpdateWindow.Call(hwnd)

	w.wg.Add(2)
	go w.paintLoop()
	go func() {
		defer w.wg.Done()
		select {
		case <-ctx.Done():
			procPostMessageW.Call(hwnd, WM_CLOSE, 0, 0)
		case <-w.quitCh:
		}
	}()

	var msg MSG
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if ret == 0 || int32(ret) == -1 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}

	close(w.quitCh)
	w.wg.Wait()

	w.canvas.release()
	return nil
}

// redraw scales the last frame onto the canvas and presents it. Window
// thread only.
func (w *Window) redraw() {
	c := w.canvas
	if c == nil || c.pixels == nil {
		return
	}
	w.mu.Lock()
	ScaleFrame(c.pixels, c.width, c.height, w.frame, w.frameW, w.frameH)
	w.mu.Unlock()
	if err := c.present(w.hwnd); err != nil {
		logging.Debugf("window: %v", err)
	}
}

func (w *Window) paintLoop() {
	defer w.wg.Done()

	paint := time.NewTicker(paintInterval)
	defer paint.Stop()
	titles := time.NewTicker(titleInterval)
	defer titles.Stop()

	var seq uint64
	var scratch []byte
	for {
		select {
		case <-w.quitCh:
			return
		case <-titles.C:
			w.updateTitle()
		case <-paint.C:
			if w.opts.Frames.FrameSeq() == seq {
				continue
			}
			f, ok := w.opts.Frames.CurrentFrame(scratch)
			if !ok {
				continue
			}
			scratch = f.Data
			seq = f.Seq

			w.mu.Lock()
			w.frame = append(w.frame[:0], f.Data...)
			w.frameW, w.frameH = f.Width, f.Height
			w.mu.Unlock()

			if w.pending.CompareAndSwap(false, true) {
				procPostMessageW.Call(uintptr(w.hwnd), WM_APP_FRAME, 0, 0)
			}
		}
	}
}

func (w *Window) updateTitle() {
	text := w.cfg.WindowTitle
	if w.opts.Status != nil {
		text += " - " + w.opts.Status()
	}
	p, err := syscall.UTF16PtrFromString(text)
	if err != nil {
		return
	}
	procSetWindowTextW.Call(uintptr(w.hwnd), uintptr(unsafe.Pointer(p)))
}

func wndProcCallback(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	windowInstanceMu.Lock()
	w := windowInstance
	windowInstanceMu.Unlock()

	if w != nil {
		switch msg {
		case WM_NCHITTEST:
			return w.handleNCHitTest(lParam)
		case WM_GETMINMAXINFO:
			w.handleGetMinMaxInfo(lParam)
			return 0
		case WM_SIZING:
			w.handleSizing(wParam, lParam)
			return 1
		case WM_SIZE:
			width := int(lParam & 0xFFFF)
			height := int((lParam >> 16) & 0xFFFF)
			if width > 0 && height > 0 {
				w.resize(width, height)
			}
		case WM_RBUTTONUP, WM_NCRBUTTONUP:
			w.showContextMenu()
			return 0
		case WM_COMMAND:
			w.handleCommand(int(wParam & 0xFFFF))
			return 0
		case WM_APP_FRAME:
			w.pending.Store(false)
			w.redraw()
			return 0
		}
	}
	if msg == WM_DESTROY {
		procPostQuitMessage.Call(0)
		return 0
	}

	ret, _, _ := procDefWindowProcW.Call(hwnd, uintptr(msg), wParam, lParam)
	return ret
}

func (w *Window) handleNCHitTest(lParam uintptr) uintptr {
	pt := POINT{X: int32(int16(lParam & 0xFFFF)), Y: int32(int16((lParam >> 16) & 0xFFFF))}
	procScreenToClient.Call(uintptr(w.hwnd), uintptr(unsafe.Pointer(&pt)))
	cx, cy := int(pt.X), int(pt.Y)

	width, height := w.canvas.width, w.canvas.height
	alpha := w.canvas.alphaAt(cx, cy)

	if cx < 0 || cy < 0 || cx >= width || cy >= height {
		return HTTRANSPARENT
	}
	// letterbox bars are click-through
	if alpha < w.cfg.AlphaThreshold {
		return HTTRANSPARENT
	}

	grab := w.cfg.BorderGrabSize
	onLeft := cx < grab
	onRight := cx >= width-grab
	onTop := cy < grab
	onBottom := cy >= height-grab

	switch {
	case onTop && onLeft:
		return HTTOPLEFT
	case onTop && onRight:
		return HTTOPRIGHT
	case onBottom && onLeft:
		return HTBOTTOMLEFT
	case onBottom && onRight:
		return HTBOTTOMRIGHT
	case onLeft:
		return HTLEFT
	case onRight:
		return HTRIGHT
	case onTop:
		return HTTOP
	case onBottom:
		return HTBOTTOM
	}
	return HTCAPTION
}

func (w *Window) handleGetMinMaxInfo(lParam uintptr) {
	mmi := (*MINMAXINFO)(unsafe.Pointer(lParam))

	screenW, _, _ := procGetSystemMetrics.Call(SM_CXSCREEN)
	screenH, _, _ := procGetSystemMetrics.Call(SM_CYSCREEN)
	maxW, maxH := int(screenW)-50, int(screenH)-50
	if w.cfg.MaxSize > 0 {
		maxW = min(maxW, w.cfg.MaxSize)
		maxH = min(maxH, w.cfg.MaxSize)
	}

	mmi.PtMinTrackSize.X = int32(w.cfg.MinSize)
	mmi.PtMinTrackSize.Y = int32(w.cfg.MinSize)
	mmi.PtMaxTrackSize.X = int32(maxW)
	mmi.PtMaxTrackSize.Y = int32(maxH)
}

// handleSizing keeps the window at the aspect ratio of the last frame.
func (w *Window) handleSizing(wParam, lParam uintptr) {
	if !w.cfg.KeepAspect {
		return
	}
	w.mu.Lock()
	fw, fh := int32(w.frameW), int32(w.frameH)
	w.mu.Unlock()
	if fw <= 0 || fh <= 0 {
		return
	}

	rect := (*RECT)(unsafe.Pointer(lParam))
	width := rect.Right - rect.Left
	height := rect.Bottom - rect.Top

	switch wParam {
	case WMSZ_LEFT, WMSZ_RIGHT:
		rect.Bottom = rect.Top + width*fh/fw
	case WMSZ_TOP, WMSZ_BOTTOM:
		rect.Right = rect.Left + height*fw/fh
	case WMSZ_TOPLEFT, WMSZ_BOTTOMLEFT:
		rect.Left = rect.Right - height*fw/fh
	case WMSZ_TOPRIGHT, WMSZ_BOTTOMRIGHT:
		rect.Right = rect.Left + height*fw/fh
	}
}

func (w *Window) resize(width, height int) {
	if w.canvas != nil && w.canvas.width == width && w.canvas.height == height {
		return
	}
	canvas, err := newDIB(width, height)
	if err != nil {
		logging.Errorf("window: resize to %dx%d: %v", width, height, err)
		return
	}
	if w.canvas != nil {
		w.canvas.release()
	}
	w.canvas = canvas
	w.redraw()
}

func (w *Window) showContextMenu() {
	hMenu, _, _ := procCreatePopupMenu.Call()
	if hMenu == 0 {
		return
	}
	defer procDestroyMenu.Call(hMenu)

	topFlags := uintptr(MF_STRING)
	if w.isTopmost {
		topFlags |= MF_CHECKED
	}
	alwaysTop, _ := syscall.UTF16PtrFromString("Always On Top")
	reconnect, _ := syscall.UTF16PtrFromString("Reconnect")
	quit, _ := syscall.UTF16PtrFromString("Quit")

	procAppendMenuW.Call(hMenu, topFlags, IDM_ALWAYS_TOP, uintptr(unsafe.Pointer(alwaysTop)))
	if w.opts.OnReconnect != nil {
		procAppendMenuW.Call(hMenu, MF_STRING, IDM_RECONNECT, uintptr(unsafe.Pointer(reconnect)))
	}
	procAppendMenuW.Call(hMenu, MF_SEPARATOR, 0, 0)
	procAppendMenuW.Call(hMenu, MF_STRING, IDM_QUIT, uintptr(unsafe.Pointer(quit)))

	var pt POINT
	procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	procSetForegroundWindow.Call(uintptr(w.hwnd))

	cmd, _, _ := procTrackPopupMenu.Call(
		hMenu,
		TPM_LEFTALIGN|TPM_RETURNCMD,
		uintptr(pt.X), uintptr(pt.Y),
		0, uintptr(w.hwnd), 0,
	)
	if cmd != 0 {
		w.handleCommand(int(cmd))
	}
}

func (w *Window) handleCommand(id int) {
	switch id {
	case IDM_QUIT:
		procPostMessageW.Call(uintptr(w.hwnd), WM_CLOSE, 0, 0)
	case IDM_ALWAYS_TOP:
		w.toggleAlwaysOnTop()
	case IDM_RECONNECT:
		if w.opts.OnReconnect != nil {
			go w.opts.OnReconnect()
		}
	}
}

func (w *Window) toggleAlwaysOnTop() {
	w.isTopmost = !w.isTopmost

	insertAfter := uintptr(HWND_NOTOPMOST)
	if w.isTopmost {
		insertAfter = HWND_TOPMOST
	}
	procSetWindowPos.Call(uintptr(w.hwnd), insertAfter, 0, 0, 0, 0, SWP_NOMOVE|SWP_NOSIZE)
}
