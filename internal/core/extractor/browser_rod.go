package extractor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	log "github.com/sirupsen/logrus"

	"github.com/dyget/dyget/internal/core/config"
)

// RodLauncher starts Chromium through go-rod with the profile's flags.
type RodLauncher struct{}

func (RodLauncher) Launch(ctx context.Context, profile config.BrowserProfile) (BrowserHandle, error) {
	l := launcher.New().
		Headless(profile.Headless).
		Set("window-size", "1920,1080").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("mute-audio")
	for _, f := range profile.Flags {
		l = l.Set(flags.Flag(f))
	}
	if profile.Bin != "" {
		l = l.Bin(profile.Bin)
	}

	type launched struct {
		url string
		err error
	}
	ch := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		ch <- launched{u, err}
	}()

	var res launched
	select {
	case res = <-ch:
	case <-ctx.Done():
		l.Kill()
		l.Cleanup()
		return nil, ctx.Err()
	}
	if res.err != nil {
		l.Cleanup()
		return nil, res.err
	}

	browser := rod.New().ControlURL(res.url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	return &rodBrowser{launcher: l, browser: browser}, nil
}

type rodBrowser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func (b *rodBrowser) NewPage(ctx context.Context, userAgent string) (BrowserPage, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		err = page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      userAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		})
		if err != nil {
			_ = page.Close()
			return nil, err
		}
	}
	return &rodPage{page: page}, nil
}

// Close shuts the browser down and removes its temporary profile directory.
func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
}

type pendingResponse struct {
	url         string
	status      int
	contentType string
}

func (p *rodPage) Intercept(ic Interceptor) (func(), error) {
	if err := (proto.NetworkEnable{}).Call(p.page); err != nil {
		return nil, fmt.Errorf("enable network domain: %w", err)
	}
	err := proto.FetchEnable{
		Patterns: []*proto.FetchRequestPattern{{URLPattern: "*"}},
	}.Call(p.page)
	if err != nil {
		return nil, fmt.Errorf("enable fetch domain: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	pending := map[proto.NetworkRequestID]pendingResponse{}

	wait := p.page.Context(listenCtx).EachEvent(
		func(ev *proto.FetchRequestPaused) {
			req := InterceptedRequest{URL: ev.Request.URL, ResourceType: ev.ResourceType}
			if ic.Block(req) {
				_ = proto.FetchFailRequest{
					RequestID:   ev.RequestID,
					ErrorReason: proto.NetworkErrorReasonBlockedByClient,
				}.Call(p.page)
				return
			}
			_ = proto.FetchContinueRequest{RequestID: ev.RequestID}.Call(p.page)
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil || !ic.Wants(ev.Response.URL) {
				return
			}
			pending[ev.RequestID] = pendingResponse{
				url:         ev.Response.URL,
				status:      ev.Response.Status,
				contentType: ev.Response.MIMEType,
			}
		},
		func(ev *proto.NetworkLoadingFinished) {
			resp, ok := pending[ev.RequestID]
			if !ok {
				return
			}
			delete(pending, ev.RequestID)

			body, err := proto.NetworkGetResponseBody{RequestID: ev.RequestID}.Call(p.page)
			if err != nil {
				log.WithField("url", resp.url).WithError(err).Debug("read intercepted body")
				return
			}
			data := []byte(body.Body)
			if body.Base64Encoded {
				if data, err = base64.StdEncoding.DecodeString(body.Body); err != nil {
					return
				}
			}
			ic.Observe(InterceptedResponse{
				URL:         resp.url,
				Status:      resp.status,
				ContentType: resp.contentType,
				Body:        data,
			})
		},
	)
	go func() {
		defer close(done)
		wait()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(info.Title), nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
