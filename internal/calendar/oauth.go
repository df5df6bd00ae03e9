package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// LoopbackAuth runs the installed-app OAuth flow: it listens on a loopback
// port, prints the consent URL to out and waits for the redirect carrying
// the authorization code. The returned token holds the refresh token to put
// in GOOGLE_REFRESH_TOKEN.
func LoopbackAuth(ctx context.Context, conf *oauth2.Config, out io.Writer, timeout time.Duration) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	flow := *conf
	flow.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	state := fmt.Sprintf("vt-calendar-%d", time.Now().UnixNano())
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	server := &http.Server{
		Handler:           callbackHandler(state, codes, errs),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errs <- err:
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background()) //nolint:errcheck

	fmt.Fprintf(out, "\nOpen this URL in your browser to authorize calendar access:\n\n%s\n\n",
		flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	fmt.Fprintln(out, "Waiting for authorization...")

	select {
	case code := <-codes:
		token, err := flow.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchange code: %w", err)
		}
		return token, nil
	case err := <-errs:
		return nil, fmt.Errorf("authorization failed: %w", err)
	case <-time.After(timeout):
		return nil, fmt.Errorf("no callback received within %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func callbackHandler(state string, codes chan<- string, errs chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			msg := q.Get("error")
			if msg == "" {
				msg = "unknown error"
			}
			select {
			case errs <- fmt.Errorf("oauth error: %s", msg):
			default:
			}
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}
		select {
		case codes <- code:
		default:
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Calendar access granted. You can close this window.")
	})
	return mux
}
