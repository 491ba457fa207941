package model

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Command 语句类型
type Command string

const (
	CommandInsert      Command = "insert"
	CommandUpdate      Command = "update"
	CommandDelete      Command = "delete"
	CommandDeleteAll   Command = "deleteAll"
	CommandMerge       Command = "merge"
	CommandInlineMerge Command = "inlineMerge"
	CommandQuery       Command = "query"
	CommandQueryAll    Command = "queryAll"
	CommandBatchQuery  Command = "batchQuery"
	CommandBulkInsert  Command = "bulkInsert"
	CommandAverage     Command = "average"
	CommandCount       Command = "count"
	CommandMax         Command = "max"
	CommandMin         Command = "min"
	CommandSum         Command = "sum"
)

var ErrUnknownCommand = errors.New("unknown command")

// Commands 返回全部语句类型，按声明顺序
func Commands() []Command {
	return []Command{
		CommandInsert, CommandUpdate, CommandDelete, CommandDeleteAll,
		CommandMerge, CommandInlineMerge,
		CommandQuery, CommandQueryAll, CommandBatchQuery, CommandBulkInsert,
		CommandAverage, CommandCount, CommandMax, CommandMin, CommandSum,
	}
}

// ParseCommand 解析语句类型，大小写不敏感，支持 inline_merge / inline-merge 这类写法
func ParseCommand(name string) (Command, error) {
	normalized := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(name))
	for _, cmd := range Commands() {
		if strings.EqualFold(string(cmd), normalized) {
			return cmd, nil
		}
	}
	if strings.EqualFold(normalized, "avg") {
		return CommandAverage, nil
	}
	return "", errors.Wrapf(ErrUnknownCommand, "command %q", name)
}

// IsAggregate 是否为聚合类语句
func (c Command) IsAggregate() bool {
	switch c {
	case CommandAverage, CommandCount, CommandMax, CommandMin, CommandSum:
		return true
	}
	return false
}

// IsMergeFamily merge 和 inlineMerge 共享 overrideIgnore 语义
func (c Command) IsMergeFamily() bool {
	return c == CommandMerge || c == CommandInlineMerge
}

func (c Command) String() string {
	return string(c)
}

// CommandSet 语句类型集合
type CommandSet map[Command]struct{}

func NewCommandSet(cmds ...Command) CommandSet {
	set := make(CommandSet, len(cmds))
	for _, cmd := range cmds {
		set[cmd] = struct{}{}
	}
	return set
}

func (s CommandSet) Has(cmd Command) bool {
	_, ok := s[cmd]
	return ok
}

func (s CommandSet) Add(cmds ...Command) {
	for _, cmd := range cmds {
		s[cmd] = struct{}{}
	}
}

// Commands 返回排序后的集合元素，保证输出稳定
func (s CommandSet) Commands() []Command {
	cmds := make([]Command, 0, len(s))
	for cmd := range s {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}
