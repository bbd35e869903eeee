// Package conversation defines the message model shared by the agent graph
// and the durable per-thread history store.
//
// A conversation thread is identified by an opaque thread id and owns an
// ordered sequence of messages. Messages form a tagged union over four
// roles: system, user, assistant, and tool_result. Assistant messages may
// carry tool calls; tool_result messages answer exactly one tool call by id.
//
// The Store persists threads in a single SQLite file across three tables
// (threads, messages, tool_calls). Appends to the same thread serialize;
// appends to different threads proceed concurrently.
package conversation
