//go:build !ci

package tinkercalc_test

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/livetemplate/tinkercalc/internal/config"
	"github.com/livetemplate/tinkercalc/internal/server"
)

// keypadTest is a browser pointed at a running keypad server.
type keypadTest struct {
	chrome *DockerChromeContext
	url    string
}

func setupKeypadTest(t *testing.T) (*keypadTest, func()) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Features.HotReload = false
	cfg.Features.Keyboard = true

	srv, err := server.New(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())

	chromeCtx, chromeCleanup := SetupDockerChrome(t, 60*time.Second)

	chromedp.ListenTarget(chromeCtx.Context, func(ev any) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			for _, arg := range ev.Args {
				t.Logf("[Browser Console] %s", arg.Value)
			}
		case *runtime.EventExceptionThrown:
			t.Logf("[Browser Error] %s", ev.ExceptionDetails.Text)
		}
	})

	kt := &keypadTest{chrome: chromeCtx, url: ConvertURLForDockerChrome(ts.URL)}
	cleanup := func() {
		chromeCleanup()
		ts.Close()
		srv.Close()
	}
	return kt, cleanup
}

// open loads the keypad and waits for its WebSocket.
func (kt *keypadTest) open() chromedp.Action {
	return chromedp.Tasks{
		chromedp.Navigate(kt.url + "/"),
		chromedp.WaitVisible(`body[data-connected="true"]`, chromedp.ByQuery),
	}
}

// click presses keypad buttons in order.
func click(keys ...string) chromedp.Action {
	var tasks chromedp.Tasks
	for _, key := range keys {
		tasks = append(tasks, chromedp.Click(fmt.Sprintf(`button[data-key="%s"]`, key), chromedp.ByQuery))
	}
	return tasks
}

// waitDisplay waits until the display shows previous and current.
func waitDisplay(previous, current string) chromedp.Action {
	expr := fmt.Sprintf(
		`document.querySelector("[data-previous]").textContent === %q && document.querySelector("[data-current]").textContent === %q`,
		previous, current)
	return chromedp.Poll(expr, nil, chromedp.WithPollingTimeout(5*time.Second))
}

func TestKeypadComputesWithGrouping(t *testing.T) {
	kt, cleanup := setupKeypadTest(t)
	defer cleanup()

	err := chromedp.Run(kt.chrome.Context,
		kt.open(),
		click("1", "2", "3", "4", "+"),
		waitDisplay("1,234 +", ""),
		click("6", "="),
		waitDisplay("", "1,240"),
	)
	if err != nil {
		t.Fatalf("keypad run failed: %v", err)
	}
}

func TestKeypadDivideByZeroAlert(t *testing.T) {
	kt, cleanup := setupKeypadTest(t)
	defer cleanup()

	var alertText string
	err := chromedp.Run(kt.chrome.Context,
		kt.open(),
		click("8", "÷", "0", "="),
		chromedp.WaitVisible(`.alert`, chromedp.ByQuery),
		chromedp.Text(`.alert`, &alertText, chromedp.ByQuery),
		waitDisplay("", "0"),
	)
	if err != nil {
		t.Fatalf("keypad run failed: %v", err)
	}
	if alertText != "Cannot divide by zero!" {
		t.Errorf("unexpected alert %q", alertText)
	}
}

func TestKeypadPercentDeleteClear(t *testing.T) {
	kt, cleanup := setupKeypadTest(t)
	defer cleanup()

	err := chromedp.Run(kt.chrome.Context,
		kt.open(),
		click("5", "0", "%"),
		waitDisplay("", "0.5"),
		click("DEL"),
		waitDisplay("", "0."),
		click("9", "×"),
		waitDisplay("0.9 ×", ""),
		click("C"),
		waitDisplay("", "0"),
	)
	if err != nil {
		t.Fatalf("keypad run failed: %v", err)
	}
}

func TestKeypadKeyboardInput(t *testing.T) {
	kt, cleanup := setupKeypadTest(t)
	defer cleanup()

	err := chromedp.Run(kt.chrome.Context,
		kt.open(),
		chromedp.KeyEvent("7*6"),
		waitDisplay("7 ×", "6"),
		chromedp.KeyEvent("\r"),
		waitDisplay("", "42"),
	)
	if err != nil {
		t.Fatalf("keypad run failed: %v", err)
	}
}
