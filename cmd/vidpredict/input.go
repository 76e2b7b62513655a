package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

type lineInput interface {
	ReadLine(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Close() error
}

// basicLineInput 无终端时的行输入（管道、测试）
// basicLineInput reads lines from a plain reader such as a pipe or a test buffer
type basicLineInput struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newBasicLineInput(in io.Reader, out io.Writer) *basicLineInput {
	return &basicLineInput{
		in:     in,
		reader: bufio.NewReader(in),
		out:    out,
	}
}

func (b *basicLineInput) ReadLine(prompt string) (string, error) {
	if b.out != nil {
		fmt.Fprint(b.out, prompt)
	}
	line, err := b.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadPassword 从终端读取时关闭回显，否则按普通行读取
// ReadPassword disables echo when stdin is a terminal and falls back to a plain line otherwise
func (b *basicLineInput) ReadPassword(prompt string) (string, error) {
	if f, ok := terminalFile(b.in); ok {
		if b.out != nil {
			fmt.Fprint(b.out, prompt)
		}
		secret, err := term.ReadPassword(int(f.Fd()))
		if b.out != nil {
			fmt.Fprintln(b.out)
		}
		return string(secret), err
	}
	return b.ReadLine(prompt)
}

func (b *basicLineInput) Close() error { return nil }

type readlineInput struct {
	instance *readline.Instance
}

func newReadlineInput(historyPath string) (*readlineInput, error) {
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	instance, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
		AutoComplete:      shellCompleter(),
	})
	if err != nil {
		return nil, err
	}
	return &readlineInput{instance: instance}, nil
}

func (r *readlineInput) ReadLine(prompt string) (string, error) {
	r.instance.SetPrompt(prompt)
	return r.instance.Readline()
}

func (r *readlineInput) ReadPassword(prompt string) (string, error) {
	secret, err := r.instance.ReadPassword(prompt)
	return string(secret), err
}

func (r *readlineInput) Close() error {
	if r == nil || r.instance == nil {
		return nil
	}
	return r.instance.Close()
}

// newLineInput 交互终端使用 readline，否则退回到普通读取
// newLineInput uses readline on an interactive terminal and plain reads otherwise
func newLineInput(in io.Reader, out io.Writer, historyPath string) (lineInput, error) {
	if f, ok := terminalFile(in); !ok || f != os.Stdin {
		return newBasicLineInput(in, out), nil
	}
	readlineReader, err := newReadlineInput(historyPath)
	if err == nil {
		return readlineReader, nil
	}
	return newBasicLineInput(in, out), err
}

func terminalFile(r io.Reader) (*os.File, bool) {
	f, ok := r.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, false
	}
	return f, true
}

func shellCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands))
	for _, c := range shellCommands {
		items = append(items, readline.PcItem(c.name))
	}
	return readline.NewPrefixCompleter(items...)
}
