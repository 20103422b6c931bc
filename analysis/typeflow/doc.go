// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package typeflow implements a whole-program, context-sensitive points-to analysis over a closed-world
[universe.Universe].

Every variable, parameter, returned value, field and call site of an analyzed method is a node of a type-flow graph
([TypeFlow]). The state of a node is an immutable [TypeState]: the set of abstract objects ([Object]) that may flow
there. States only grow. When the state of a node changes, it is pushed to the uses of the node and its observers are
scheduled; loads, stores and call sites observe the flow of the objects they access.

Call sites are resolved incrementally: when the receiver of a call receives new objects, the call is dispatched on
the type of each object, the graph of the callee is obtained for the context computed by the [ContextPolicy] and
linked to the caller. Each method has one graph per context ([MethodFlowsGraph]), created at most once.

The [Policy] decides how objects are abstracted (one object per allocation site and heap context, or one summary
object per type), whether fields are stored per object or per type, and how calls are resolved. The
context-insensitive policy analyzes each method once and uses the summary objects only.

The [BigBang] driver processes the nodes with a pool of workers until no state changes:

	bb, err := typeflow.NewBigBang(u, cfg, logger)
	bb.AddRootMethod(u.Method("main"))
	res, err := bb.Run(ctx)
	for _, m := range res.ReachableMethods() { ... }

A node is processed by at most one worker at a time. Exceeding the node or time budget, or a node whose state
decreases, aborts the analysis with a [FatalError]. Uses of unknown values are reported as [Diagnostic]s and do not
stop the analysis.
*/
package typeflow
