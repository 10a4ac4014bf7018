// Package events defines the typed orchestration event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - tool_call.*
//   - attachment.* and sources.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Segment: append-only text piece emitted in display order.
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text/state for the current round or turn.
//
// Every event may carry the conversation and turn it belongs to, see InTurn.
//
// user_input events
//
//   - UserMessageAdded (user_input.message_added): the user message was
//     appended to the conversation.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): an inference
//     round started.
//   - AssistantResponseUpdated (assistant_response.updated): a paced segment
//     was applied; carries the full displayed reasoning and text.
//   - AssistantReasoningCollapsed (assistant_response.reasoning_collapsed):
//     reasoning finished, the client may collapse it.
//   - AssistantResponseFinal (assistant_response.final): the round's message
//     is complete.
//
// tool_call events
//
//   - ToolCallStatus (tool_call.status): loading, utilizing, completed or
//     failed, for display.
//   - ToolCallStarted (tool_call.started): tool execution started.
//   - ToolCallCompleted (tool_call.completed): tool execution completed.
//   - ToolCallFailed (tool_call.failed): tool execution failed.
//
// attachment and sources events
//
//   - AttachmentAdded (attachment.added): an image or audio message was
//     appended to the conversation.
//   - AttachmentRejected (attachment.rejected): an attachment was dropped.
//   - SourcesAdded (sources.added): a sources message was appended.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): current turn started.
//   - TurnStateChanged (turn_state.changed): the turn moved between states.
//   - TurnCompleted (turn_state.completed): current turn completed
//     successfully.
//   - TurnFailed (turn_state.failed): current turn failed.
//   - TurnCancelled (turn_state.cancelled): current turn was cancelled.
package events
