// Package prebuilt provides the ready-made graphs of kbagents.
//
// CreateRAGAgent answers a question from a vector store:
//
//	START -> retrieve -> augment -> generate -> END
//
// CreateRAGEvalAgent adds an evaluate_rag step that scores the answer with
// the eval package and logs the scores into a tracking run:
//
//	START -> retrieve -> augment -> generate -> evaluate_rag -> END
//
// CreateText2SQLAgent turns a question into SQL with the tool package's
// toolkit, looping between the model and the tools until the model stops
// requesting tool calls:
//
//	START -> messages_builder -> dba_agent <-> dba_tools
//	                                 |
//	                                END
//
// # Example
//
//	agent, err := prebuilt.CreateRAGAgent(prebuilt.RAGAgentConfig{
//		Model:       model,
//		Store:       vectorStore,
//		CallOptions: []llms.CallOption{llms.WithTemperature(0)},
//	})
//	if err != nil {
//		return err
//	}
//
//	result, err := agent.Invoke(ctx, prebuilt.RAGState{Question: "What are Open source models?"})
//	if err != nil {
//		return err
//	}
//	prebuilt.PrettyPrint(os.Stdout, result.Messages)
//
// ToolNode and HasToolCalls can be used to build other tool-calling loops.
package prebuilt
