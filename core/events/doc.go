// Package events defines the typed inbound speech event contract.
//
// Event kinds are grouped by namespaces:
//
//   - user_input.*
//   - agent_speech.*
//   - agent_response.*
//
// Every event carries the time it was observed. Transports that know when an
// utterance actually happened should pass it with [WithTimestamp], otherwise
// the construction time is used.
//
// user_input events
//
//   - UserUtteranceCommitted (user_input.utterance_committed): final
//     transcript of one user utterance.
//
// agent_speech events
//
//   - AgentSpeechStarted (agent_speech.started): the agent started speaking.
//   - AgentSpeechStopped (agent_speech.stopped): the agent stopped speaking;
//     carries the spoken text when the transport knows it.
//   - AgentSpeechInterrupted (agent_speech.interrupted): the other party
//     started speaking while the agent was mid-utterance.
//
// agent_response events
//
//   - AgentUtteranceCommitted (agent_response.utterance_committed): committed
//     agent text; may be reported by several sources for one utterance.
//   - DirectMessage (agent_response.direct_message): text injected by the
//     system, recorded as if the agent said it.
package events
