package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cyberinferno/go-chatcore/client"
	"github.com/cyberinferno/go-chatcore/protocol"
)

const (
	exitCommand  = "#exit"
	replyTimeout = 10 * time.Second
)

// palette holds the six selectable name colors: red, green, yellow, blue,
// magenta and cyan.
var palette = []lipgloss.Style{
	lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
}

var menuStyle = lipgloss.NewStyle().Bold(true)

var errServerGone = errors.New("connection to server lost")

func colorStyle(i int) lipgloss.Style {
	if i < 0 || i >= len(palette) {
		return palette[0]
	}
	return palette[i]
}

type ui struct {
	c  *client.Client
	in *bufio.Scanner

	mu  sync.Mutex
	out io.Writer

	replies chan protocol.Code
	gone    chan struct{}
	once    sync.Once
	color   int
}

func newUI(c *client.Client, in io.Reader, out io.Writer) *ui {
	u := &ui{
		c:       c,
		in:      bufio.NewScanner(in),
		out:     out,
		replies: make(chan protocol.Code, 8),
		gone:    make(chan struct{}),
	}

	c.OnResponse(u.handleResponse)
	c.OnState(func(e client.StateEvent) {
		if e.State == client.Closed {
			u.once.Do(func() { close(u.gone) })
		}
	})

	return u
}

func (u *ui) printf(format string, args ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintf(u.out, format, args...)
}

func (u *ui) handleResponse(e client.ResponseEvent) {
	resp := e.Response
	if resp.Code != protocol.CodeChatMessage {
		select {
		case u.replies <- resp.Code:
		default:
		}
		return
	}

	u.printf("%s %s\n", colorStyle(resp.Color).Render(resp.Name+":"), resp.Message)
}

func (u *ui) readLine(prompt string) (string, bool) {
	if prompt != "" {
		u.printf("%s", prompt)
	}
	if !u.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(u.in.Text()), true
}

func (u *ui) waitReply() (protocol.Code, error) {
	select {
	case code := <-u.replies:
		return code, nil
	case <-u.gone:
		return 0, errServerGone
	case <-time.After(replyTimeout):
		return 0, errors.New("no reply from server")
	}
}

func (u *ui) printMenu() {
	u.printf("%s\n", menuStyle.Render(strings.Join([]string{
		"============== Welcome ChatRoom ==============",
		"=====          0. Register               =====",
		"=====          1. Login                  =====",
		"=====          2. Exit                   =====",
		"==============================================",
	}, "\n")))
}

// run drives the menu until the user exits or finishes a chat session.
func (u *ui) run() error {
	for {
		u.printMenu()
		choice, ok := u.readLine("> ")
		if !ok {
			return nil
		}

		switch choice {
		case "0":
			if err := u.register(); err != nil {
				return err
			}
		case "1":
			name, loggedIn, err := u.login()
			if err != nil {
				return err
			}
			if loggedIn {
				return u.chat(name)
			}
		case "2":
			return nil
		default:
			u.printf("Unknown option %q.\n", choice)
		}
	}
}

func (u *ui) credentials() (string, string, bool) {
	name, ok := u.readLine("Name: ")
	if !ok {
		return "", "", false
	}
	secret, ok := u.readLine("Password: ")
	if !ok {
		return "", "", false
	}
	return name, secret, true
}

func (u *ui) register() error {
	name, secret, ok := u.credentials()
	if !ok {
		return nil
	}
	if err := u.c.Register(name, secret); err != nil {
		return err
	}

	code, err := u.waitReply()
	if err != nil {
		return err
	}
	if code == protocol.CodeRegisterOK {
		u.printf("Register Success.\n")
	} else {
		u.printf("Register Failed.\n")
	}
	return nil
}

func (u *ui) login() (string, bool, error) {
	name, secret, ok := u.credentials()
	if !ok {
		return "", false, nil
	}
	if err := u.c.Login(name, secret); err != nil {
		return "", false, err
	}

	code, err := u.waitReply()
	if err != nil {
		return "", false, err
	}
	if code != protocol.CodeLoginOK {
		u.printf("Login Failed.\n")
		return "", false, nil
	}

	u.printf("Login Success.\n")
	line, _ := u.readLine(fmt.Sprintf("Select color(0 - %d): ", len(palette)-1))
	if n, err := strconv.Atoi(line); err == nil && n >= 0 && n < len(palette) {
		u.color = n
	}
	return name, true, nil
}

// chat sends every input line until "#exit", end of input or a lost server.
func (u *ui) chat(name string) error {
	u.printf("====== ChatRoom ======\n")
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		for u.in.Scan() {
			select {
			case lines <- u.in.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-u.gone:
			return errServerGone
		case line, ok := <-lines:
			if !ok || line == exitCommand {
				return u.c.Logout()
			}
			if line == "" {
				continue
			}
			if err := u.c.Say(name, u.color, line); err != nil {
				return err
			}
		}
	}
}
