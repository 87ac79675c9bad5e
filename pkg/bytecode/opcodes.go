package bytecode

// OpCode identifies an instruction.
type OpCode uint8

// Operand formats: R register (u8), V name index (u16), K constant index
// (u16), I signed immediate (i32), A absolute address (u32).
const (
	OpNop                  OpCode = iota // no operation
	OpLdaConstAcc                        // K: acc = Constants[K]
	OpLdaConstReg                        // Rx K: Rx = Constants[K]
	OpLdaConstVar                        // V K: store Constants[K] into variable V
	OpLdaUndefined                       // acc = undefined
	OpLdaNull                            // acc = null
	OpLdaTrue                            // acc = true
	OpLdaFalse                           // acc = false
	OpLdaThis                            // acc = this
	OpLdaArg                             // I: acc = arguments[I] or undefined
	OpLdaRestArgs                        // I: acc = array of arguments from index I
	OpLdaArguments                       // acc = arguments object
	OpStar                               // Rx: Rx = acc
	OpLdar                               // Rx: acc = Rx
	OpMov                                // Rx Ry: Rx = Ry
	OpPushAcc                            // push acc on the frame stack
	OpPopReg                             // Rx: Rx = pop()
	OpLoadEnvAcc                         // V: acc = variable V
	OpLoadEnvReg                         // Rx V: Rx = variable V
	OpStoreEnvAcc                        // V: variable V = acc
	OpStoreEnvReg                        // V Rx: variable V = Rx
	OpInitEnvAcc                         // V: initialise binding V with acc
	OpDeclare                            // V I: declare binding V of kind I in the current scope
	OpDeleteEnv                          // V: acc = delete variable V
	OpTypeOfVar                          // V: acc = typeof V (no ReferenceError)
	OpTypeOfAcc                          // acc = typeof acc
	OpLoadMemberAcc                      // V: acc = acc[name V]
	OpLoadMemberReg                      // Rx V: acc = Rx[name V]
	OpLoadMemberComputed                 // Rx: acc = Rx[acc]
	OpStoreMemberReg                     // Rx V: Rx[name V] = acc
	OpStoreMemberComputed                // Rx Ry: Rx[Ry] = acc
	OpDeleteMember                       // Rx V: acc = delete Rx[name V]
	OpDeleteComputed                     // Rx: acc = delete Rx[acc]
	OpLoadSuper                          // V: acc = super[name V]
	OpLoadSuperComputed                  // Rx: acc = super[Rx]
	OpStoreSuper                         // V Rx: super[name V] = Rx
	OpStoreSuperComputed                 // Rx: super[Rx] = acc
	OpGetPrivate                         // Rx Ry: acc = Rx.#Ry
	OpSetPrivate                         // Rx Ry: Rx.#Ry = acc
	OpDefinePrivate                      // Rx Ry: define private field Rx.#Ry = acc
	OpHasPrivate                         // Rx: acc = #Rx in acc
	OpAddVarVar                          // Va Vb: acc = Va + Vb
	OpAddRegAcc                          // Rx: acc = Rx + acc
	OpAddRegReg                          // Rx Ry: acc = Rx + Ry
	OpSubVarVar                          // Va Vb: acc = Va - Vb
	OpSubRegAcc                          // Rx: acc = Rx - acc
	OpSubRegReg                          // Rx Ry: acc = Rx - Ry
	OpMulVarVar                          // Va Vb: acc = Va * Vb
	OpMulRegAcc                          // Rx: acc = Rx * acc
	OpMulRegReg                          // Rx Ry: acc = Rx * Ry
	OpDivVarVar                          // Va Vb: acc = Va / Vb
	OpDivRegAcc                          // Rx: acc = Rx / acc
	OpDivRegReg                          // Rx Ry: acc = Rx / Ry
	OpModVarVar                          // Va Vb: acc = Va % Vb
	OpModRegAcc                          // Rx: acc = Rx % acc
	OpModRegReg                          // Rx Ry: acc = Rx % Ry
	OpExpVarVar                          // Va Vb: acc = Va ** Vb
	OpExpRegAcc                          // Rx: acc = Rx ** acc
	OpExpRegReg                          // Rx Ry: acc = Rx ** Ry
	OpBitAndVarVar                       // Va Vb: acc = Va & Vb
	OpBitAndRegAcc                       // Rx: acc = Rx & acc
	OpBitAndRegReg                       // Rx Ry: acc = Rx & Ry
	OpBitOrVarVar                        // Va Vb: acc = Va | Vb
	OpBitOrRegAcc                        // Rx: acc = Rx | acc
	OpBitOrRegReg                        // Rx Ry: acc = Rx | Ry
	OpBitXorVarVar                       // Va Vb: acc = Va ^ Vb
	OpBitXorRegAcc                       // Rx: acc = Rx ^ acc
	OpBitXorRegReg                       // Rx Ry: acc = Rx ^ Ry
	OpShlVarVar                          // Va Vb: acc = Va << Vb
	OpShlRegAcc                          // Rx: acc = Rx << acc
	OpShlRegReg                          // Rx Ry: acc = Rx << Ry
	OpShrVarVar                          // Va Vb: acc = Va >> Vb
	OpShrRegAcc                          // Rx: acc = Rx >> acc
	OpShrRegReg                          // Rx Ry: acc = Rx >> Ry
	OpUshrVarVar                         // Va Vb: acc = Va >>> Vb
	OpUshrRegAcc                         // Rx: acc = Rx >>> acc
	OpUshrRegReg                         // Rx Ry: acc = Rx >>> Ry
	OpEqVarVar                           // Va Vb: acc = Va == Vb
	OpEqRegAcc                           // Rx: acc = Rx == acc
	OpEqRegReg                           // Rx Ry: acc = Rx == Ry
	OpNeqVarVar                          // Va Vb: acc = Va != Vb
	OpNeqRegAcc                          // Rx: acc = Rx != acc
	OpNeqRegReg                          // Rx Ry: acc = Rx != Ry
	OpStrictEqVarVar                     // Va Vb: acc = Va === Vb
	OpStrictEqRegAcc                     // Rx: acc = Rx === acc
	OpStrictEqRegReg                     // Rx Ry: acc = Rx === Ry
	OpStrictNeqVarVar                    // Va Vb: acc = Va !== Vb
	OpStrictNeqRegAcc                    // Rx: acc = Rx !== acc
	OpStrictNeqRegReg                    // Rx Ry: acc = Rx !== Ry
	OpLtVarVar                           // Va Vb: acc = Va < Vb
	OpLtRegAcc                           // Rx: acc = Rx < acc
	OpLtRegReg                           // Rx Ry: acc = Rx < Ry
	OpLteVarVar                          // Va Vb: acc = Va <= Vb
	OpLteRegAcc                          // Rx: acc = Rx <= acc
	OpLteRegReg                          // Rx Ry: acc = Rx <= Ry
	OpGtVarVar                           // Va Vb: acc = Va > Vb
	OpGtRegAcc                           // Rx: acc = Rx > acc
	OpGtRegReg                           // Rx Ry: acc = Rx > Ry
	OpGteVarVar                          // Va Vb: acc = Va >= Vb
	OpGteRegAcc                          // Rx: acc = Rx >= acc
	OpGteRegReg                          // Rx Ry: acc = Rx >= Ry
	OpInVarVar                           // Va Vb: acc = Va in Vb
	OpInRegAcc                           // Rx: acc = Rx in acc
	OpInRegReg                           // Rx Ry: acc = Rx in Ry
	OpInstanceOfVarVar                   // Va Vb: acc = Va instanceof Vb
	OpInstanceOfRegAcc                   // Rx: acc = Rx instanceof acc
	OpInstanceOfRegReg                   // Rx Ry: acc = Rx instanceof Ry
	OpBitNotAcc                          // acc = ~acc
	OpNegateAcc                          // acc = -acc
	OpPlusAcc                            // acc = +acc
	OpToNumericAcc                       // acc = ToNumeric(acc)
	OpToStringAcc                        // acc = ToString(acc)
	OpToPropertyKeyAcc                   // acc = ToPropertyKey(acc)
	OpLNotAcc                            // acc = !acc
	OpLAndRegAcc                         // Rx: acc = Rx && acc
	OpLOrRegAcc                          // Rx: acc = Rx || acc
	OpIncVar                             // V: V = V + 1, acc = new value
	OpIncReg                             // Rx: Rx = Rx + 1
	OpIncAcc                             // acc = acc + 1
	OpDecVar                             // V: V = V - 1, acc = new value
	OpDecReg                             // Rx: Rx = Rx - 1
	OpDecAcc                             // acc = acc - 1
	OpArgsBegin                          // start staging call arguments
	OpPushArgAcc                         // stage acc as an argument
	OpPushArgReg                         // Rx: stage Rx as an argument
	OpPushSpreadAcc                      // stage every element of iterable acc
	OpCall                               // Rx: acc = Rx(staged args) with this undefined
	OpCallMember                         // Rx Ry: acc = Ry.call(Rx, staged args)
	OpConstruct                          // Rx: acc = new Rx(staged args)
	OpSuperCall                          // acc = super(staged args); binds this
	OpCallEval                           // acc = acc(staged args), direct eval when acc is the intrinsic eval
	OpReturnUndefined                    // return undefined
	OpReturnAcc                          // return acc
	OpThrowAcc                           // throw acc
	OpThrowReg                           // Rx: throw Rx
	OpJmp                                // A: pc = A
	OpJmpRel                             // I: pc = next + I
	OpJmpIfAcc                           // A: if acc is truthy pc = A
	OpJmpIfNotAcc                        // A: if acc is falsy pc = A
	OpJmpIfAccRel                        // I: if acc is truthy pc = next + I
	OpJmpIfNotAccRel                     // I: if acc is falsy pc = next + I
	OpJmpIfNullishAcc                    // A: if acc is null or undefined pc = A
	OpJmpIfNotUndefinedAcc               // A: if acc is not undefined pc = A
	OpPushScope                          // Flags Label Break Continue: push a child scope
	OpPopScope                           // pop the current scope
	OpRenewScope                         // replace the current loop scope with a per-iteration copy
	OpPushWith                           // push an object scope over acc
	OpEnterTry                           // Catch Finally V: open a try region, catch binding V
	OpExitTry                            // leave the try or catch part of the innermost region
	OpEndFinally                         // resume the completion parked by the innermost finally
	OpYield                              // suspend yielding acc; acc = sent value on resume
	OpYieldDelegate                      // Rx: yield* over the iterator record in Rx
	OpYieldUndefined                     // suspend yielding undefined
	OpAwait                              // suspend until acc settles; acc = result
	OpGetNewTarget                       // acc = new.target
	OpGetImportMeta                      // acc = import.meta of the running module
	OpBreak                              // break out of the innermost breakable scope
	OpBreakLabel                         // I: break out of the scope labelled I
	OpContinue                           // continue the innermost loop scope
	OpContinueLabel                      // I: continue the loop scope labelled I
	OpGetIterator                        // Mode: acc = iterator record for acc
	OpIteratorNext                       // Rx A: step iterator Rx; acc = value, or pc = A when done
	OpIteratorNextRaw                    // Rx: acc = Rx.next() result without unwrapping
	OpIteratorStep                       // Rx A: unwrap result object acc for iterator Rx; pc = A when done
	OpIteratorClose                      // Rx: close iterator Rx unless it is done
	OpNewObject                          // acc = {}
	OpNewArray                           // acc = []
	OpArrayPush                          // Rx: Rx.push(acc)
	OpArraySpread                        // Rx: append every element of iterable acc to Rx
	OpArrayHole                          // Rx: append a hole to Rx
	OpDefineField                        // Rx V: define enumerable Rx[name V] = acc
	OpDefineComputed                     // Rx Ry: define enumerable Rx[Ry] = acc
	OpDefineMethod                       // Rx Ry Kind: define method acc on Rx under key Ry
	OpCopyDataProps                      // Rx: copy enumerable own properties of acc onto Rx
	OpCopyRest                           // Rx Ry: acc = copy of Rx without the keys listed in array Ry
	OpSetProtoOf                         // Rx: set the prototype of Rx to acc when acc is an object or null
	OpMakeClosure                        // K: acc = closure over blueprint K
	OpMakeClass                          // Rx K HasSuper: acc = class constructor from blueprint K extending Rx
	OpSetClassFields                     // Rx: install initialiser acc on constructor Rx
	OpTemplateObject                     // K: acc = cached template strings array for K
	OpInitHomeObject                     // Rx: set the home object of function acc to Rx
	OpDebugger                           // debugger statement

	numOpcodes
)

var opNames = [numOpcodes]string{
	OpNop:                  "Nop",
	OpLdaConstAcc:          "LdaConstAcc",
	OpLdaConstReg:          "LdaConstReg",
	OpLdaConstVar:          "LdaConstVar",
	OpLdaUndefined:         "LdaUndefined",
	OpLdaNull:              "LdaNull",
	OpLdaTrue:              "LdaTrue",
	OpLdaFalse:             "LdaFalse",
	OpLdaThis:              "LdaThis",
	OpLdaArg:               "LdaArg",
	OpLdaRestArgs:          "LdaRestArgs",
	OpLdaArguments:         "LdaArguments",
	OpStar:                 "Star",
	OpLdar:                 "Ldar",
	OpMov:                  "Mov",
	OpPushAcc:              "PushAcc",
	OpPopReg:               "PopReg",
	OpLoadEnvAcc:           "LoadEnvAcc",
	OpLoadEnvReg:           "LoadEnvReg",
	OpStoreEnvAcc:          "StoreEnvAcc",
	OpStoreEnvReg:          "StoreEnvReg",
	OpInitEnvAcc:           "InitEnvAcc",
	OpDeclare:              "Declare",
	OpDeleteEnv:            "DeleteEnv",
	OpTypeOfVar:            "TypeOfVar",
	OpTypeOfAcc:            "TypeOfAcc",
	OpLoadMemberAcc:        "LoadMemberAcc",
	OpLoadMemberReg:        "LoadMemberReg",
	OpLoadMemberComputed:   "LoadMemberComputed",
	OpStoreMemberReg:       "StoreMemberReg",
	OpStoreMemberComputed:  "StoreMemberComputed",
	OpDeleteMember:         "DeleteMember",
	OpDeleteComputed:       "DeleteComputed",
	OpLoadSuper:            "LoadSuper",
	OpLoadSuperComputed:    "LoadSuperComputed",
	OpStoreSuper:           "StoreSuper",
	OpStoreSuperComputed:   "StoreSuperComputed",
	OpGetPrivate:           "GetPrivate",
	OpSetPrivate:           "SetPrivate",
	OpDefinePrivate:        "DefinePrivate",
	OpHasPrivate:           "HasPrivate",
	OpAddVarVar:            "AddVarVar",
	OpAddRegAcc:            "AddRegAcc",
	OpAddRegReg:            "AddRegReg",
	OpSubVarVar:            "SubVarVar",
	OpSubRegAcc:            "SubRegAcc",
	OpSubRegReg:            "SubRegReg",
	OpMulVarVar:            "MulVarVar",
	OpMulRegAcc:            "MulRegAcc",
	OpMulRegReg:            "MulRegReg",
	OpDivVarVar:            "DivVarVar",
	OpDivRegAcc:            "DivRegAcc",
	OpDivRegReg:            "DivRegReg",
	OpModVarVar:            "ModVarVar",
	OpModRegAcc:            "ModRegAcc",
	OpModRegReg:            "ModRegReg",
	OpExpVarVar:            "ExpVarVar",
	OpExpRegAcc:            "ExpRegAcc",
	OpExpRegReg:            "ExpRegReg",
	OpBitAndVarVar:         "BitAndVarVar",
	OpBitAndRegAcc:         "BitAndRegAcc",
	OpBitAndRegReg:         "BitAndRegReg",
	OpBitOrVarVar:          "BitOrVarVar",
	OpBitOrRegAcc:          "BitOrRegAcc",
	OpBitOrRegReg:          "BitOrRegReg",
	OpBitXorVarVar:         "BitXorVarVar",
	OpBitXorRegAcc:         "BitXorRegAcc",
	OpBitXorRegReg:         "BitXorRegReg",
	OpShlVarVar:            "ShlVarVar",
	OpShlRegAcc:            "ShlRegAcc",
	OpShlRegReg:            "ShlRegReg",
	OpShrVarVar:            "ShrVarVar",
	OpShrRegAcc:            "ShrRegAcc",
	OpShrRegReg:            "ShrRegReg",
	OpUshrVarVar:           "UshrVarVar",
	OpUshrRegAcc:           "UshrRegAcc",
	OpUshrRegReg:           "UshrRegReg",
	OpEqVarVar:             "EqVarVar",
	OpEqRegAcc:             "EqRegAcc",
	OpEqRegReg:             "EqRegReg",
	OpNeqVarVar:            "NeqVarVar",
	OpNeqRegAcc:            "NeqRegAcc",
	OpNeqRegReg:            "NeqRegReg",
	OpStrictEqVarVar:       "StrictEqVarVar",
	OpStrictEqRegAcc:       "StrictEqRegAcc",
	OpStrictEqRegReg:       "StrictEqRegReg",
	OpStrictNeqVarVar:      "StrictNeqVarVar",
	OpStrictNeqRegAcc:      "StrictNeqRegAcc",
	OpStrictNeqRegReg:      "StrictNeqRegReg",
	OpLtVarVar:             "LtVarVar",
	OpLtRegAcc:             "LtRegAcc",
	OpLtRegReg:             "LtRegReg",
	OpLteVarVar:            "LteVarVar",
	OpLteRegAcc:            "LteRegAcc",
	OpLteRegReg:            "LteRegReg",
	OpGtVarVar:             "GtVarVar",
	OpGtRegAcc:             "GtRegAcc",
	OpGtRegReg:             "GtRegReg",
	OpGteVarVar:            "GteVarVar",
	OpGteRegAcc:            "GteRegAcc",
	OpGteRegReg:            "GteRegReg",
	OpInVarVar:             "InVarVar",
	OpInRegAcc:             "InRegAcc",
	OpInRegReg:             "InRegReg",
	OpInstanceOfVarVar:     "InstanceOfVarVar",
	OpInstanceOfRegAcc:     "InstanceOfRegAcc",
	OpInstanceOfRegReg:     "InstanceOfRegReg",
	OpBitNotAcc:            "BitNotAcc",
	OpNegateAcc:            "NegateAcc",
	OpPlusAcc:              "PlusAcc",
	OpToNumericAcc:         "ToNumericAcc",
	OpToStringAcc:          "ToStringAcc",
	OpToPropertyKeyAcc:     "ToPropertyKeyAcc",
	OpLNotAcc:              "LNotAcc",
	OpLAndRegAcc:           "LAndRegAcc",
	OpLOrRegAcc:            "LOrRegAcc",
	OpIncVar:               "IncVar",
	OpIncReg:               "IncReg",
	OpIncAcc:               "IncAcc",
	OpDecVar:               "DecVar",
	OpDecReg:               "DecReg",
	OpDecAcc:               "DecAcc",
	OpArgsBegin:            "ArgsBegin",
	OpPushArgAcc:           "PushArgAcc",
	OpPushArgReg:           "PushArgReg",
	OpPushSpreadAcc:        "PushSpreadAcc",
	OpCall:                 "Call",
	OpCallMember:           "CallMember",
	OpConstruct:            "Construct",
	OpSuperCall:            "SuperCall",
	OpCallEval:             "CallEval",
	OpReturnUndefined:      "ReturnUndefined",
	OpReturnAcc:            "ReturnAcc",
	OpThrowAcc:             "ThrowAcc",
	OpThrowReg:             "ThrowReg",
	OpJmp:                  "Jmp",
	OpJmpRel:               "JmpRel",
	OpJmpIfAcc:             "JmpIfAcc",
	OpJmpIfNotAcc:          "JmpIfNotAcc",
	OpJmpIfAccRel:          "JmpIfAccRel",
	OpJmpIfNotAccRel:       "JmpIfNotAccRel",
	OpJmpIfNullishAcc:      "JmpIfNullishAcc",
	OpJmpIfNotUndefinedAcc: "JmpIfNotUndefinedAcc",
	OpPushScope:            "PushScope",
	OpPopScope:             "PopScope",
	OpRenewScope:           "RenewScope",
	OpPushWith:             "PushWith",
	OpEnterTry:             "EnterTry",
	OpExitTry:              "ExitTry",
	OpEndFinally:           "EndFinally",
	OpYield:                "Yield",
	OpYieldDelegate:        "YieldDelegate",
	OpYieldUndefined:       "YieldUndefined",
	OpAwait:                "Await",
	OpGetNewTarget:         "GetNewTarget",
	OpGetImportMeta:        "GetImportMeta",
	OpBreak:                "Break",
	OpBreakLabel:           "BreakLabel",
	OpContinue:             "Continue",
	OpContinueLabel:        "ContinueLabel",
	OpGetIterator:          "GetIterator",
	OpIteratorNext:         "IteratorNext",
	OpIteratorNextRaw:      "IteratorNextRaw",
	OpIteratorStep:         "IteratorStep",
	OpIteratorClose:        "IteratorClose",
	OpNewObject:            "NewObject",
	OpNewArray:             "NewArray",
	OpArrayPush:            "ArrayPush",
	OpArraySpread:          "ArraySpread",
	OpArrayHole:            "ArrayHole",
	OpDefineField:          "DefineField",
	OpDefineComputed:       "DefineComputed",
	OpDefineMethod:         "DefineMethod",
	OpCopyDataProps:        "CopyDataProps",
	OpCopyRest:             "CopyRest",
	OpSetProtoOf:           "SetProtoOf",
	OpMakeClosure:          "MakeClosure",
	OpMakeClass:            "MakeClass",
	OpSetClassFields:       "SetClassFields",
	OpTemplateObject:       "TemplateObject",
	OpInitHomeObject:       "InitHomeObject",
	OpDebugger:             "Debugger",
}

var opShapes = [numOpcodes][]OperandKind{
	OpLdaConstAcc:          {OperandConst},
	OpLdaConstReg:          {OperandReg, OperandConst},
	OpLdaConstVar:          {OperandVar, OperandConst},
	OpLdaArg:               {OperandImm},
	OpLdaRestArgs:          {OperandImm},
	OpStar:                 {OperandReg},
	OpLdar:                 {OperandReg},
	OpMov:                  {OperandReg, OperandReg},
	OpPopReg:               {OperandReg},
	OpLoadEnvAcc:           {OperandVar},
	OpLoadEnvReg:           {OperandReg, OperandVar},
	OpStoreEnvAcc:          {OperandVar},
	OpStoreEnvReg:          {OperandVar, OperandReg},
	OpInitEnvAcc:           {OperandVar},
	OpDeclare:              {OperandVar, OperandImm},
	OpDeleteEnv:            {OperandVar},
	OpTypeOfVar:            {OperandVar},
	OpLoadMemberAcc:        {OperandVar},
	OpLoadMemberReg:        {OperandReg, OperandVar},
	OpLoadMemberComputed:   {OperandReg},
	OpStoreMemberReg:       {OperandReg, OperandVar},
	OpStoreMemberComputed:  {OperandReg, OperandReg},
	OpDeleteMember:         {OperandReg, OperandVar},
	OpDeleteComputed:       {OperandReg},
	OpLoadSuper:            {OperandVar},
	OpLoadSuperComputed:    {OperandReg},
	OpStoreSuper:           {OperandVar, OperandReg},
	OpStoreSuperComputed:   {OperandReg},
	OpGetPrivate:           {OperandReg, OperandReg},
	OpSetPrivate:           {OperandReg, OperandReg},
	OpDefinePrivate:        {OperandReg, OperandReg},
	OpHasPrivate:           {OperandReg},
	OpAddVarVar:            {OperandVar, OperandVar},
	OpAddRegAcc:            {OperandReg},
	OpAddRegReg:            {OperandReg, OperandReg},
	OpSubVarVar:            {OperandVar, OperandVar},
	OpSubRegAcc:            {OperandReg},
	OpSubRegReg:            {OperandReg, OperandReg},
	OpMulVarVar:            {OperandVar, OperandVar},
	OpMulRegAcc:            {OperandReg},
	OpMulRegReg:            {OperandReg, OperandReg},
	OpDivVarVar:            {OperandVar, OperandVar},
	OpDivRegAcc:            {OperandReg},
	OpDivRegReg:            {OperandReg, OperandReg},
	OpModVarVar:            {OperandVar, OperandVar},
	OpModRegAcc:            {OperandReg},
	OpModRegReg:            {OperandReg, OperandReg},
	OpExpVarVar:            {OperandVar, OperandVar},
	OpExpRegAcc:            {OperandReg},
	OpExpRegReg:            {OperandReg, OperandReg},
	OpBitAndVarVar:         {OperandVar, OperandVar},
	OpBitAndRegAcc:         {OperandReg},
	OpBitAndRegReg:         {OperandReg, OperandReg},
	OpBitOrVarVar:          {OperandVar, OperandVar},
	OpBitOrRegAcc:          {OperandReg},
	OpBitOrRegReg:          {OperandReg, OperandReg},
	OpBitXorVarVar:         {OperandVar, OperandVar},
	OpBitXorRegAcc:         {OperandReg},
	OpBitXorRegReg:         {OperandReg, OperandReg},
	OpShlVarVar:            {OperandVar, OperandVar},
	OpShlRegAcc:            {OperandReg},
	OpShlRegReg:            {OperandReg, OperandReg},
	OpShrVarVar:            {OperandVar, OperandVar},
	OpShrRegAcc:            {OperandReg},
	OpShrRegReg:            {OperandReg, OperandReg},
	OpUshrVarVar:           {OperandVar, OperandVar},
	OpUshrRegAcc:           {OperandReg},
	OpUshrRegReg:           {OperandReg, OperandReg},
	OpEqVarVar:             {OperandVar, OperandVar},
	OpEqRegAcc:             {OperandReg},
	OpEqRegReg:             {OperandReg, OperandReg},
	OpNeqVarVar:            {OperandVar, OperandVar},
	OpNeqRegAcc:            {OperandReg},
	OpNeqRegReg:            {OperandReg, OperandReg},
	OpStrictEqVarVar:       {OperandVar, OperandVar},
	OpStrictEqRegAcc:       {OperandReg},
	OpStrictEqRegReg:       {OperandReg, OperandReg},
	OpStrictNeqVarVar:      {OperandVar, OperandVar},
	OpStrictNeqRegAcc:      {OperandReg},
	OpStrictNeqRegReg:      {OperandReg, OperandReg},
	OpLtVarVar:             {OperandVar, OperandVar},
	OpLtRegAcc:             {OperandReg},
	OpLtRegReg:             {OperandReg, OperandReg},
	OpLteVarVar:            {OperandVar, OperandVar},
	OpLteRegAcc:            {OperandReg},
	OpLteRegReg:            {OperandReg, OperandReg},
	OpGtVarVar:             {OperandVar, OperandVar},
	OpGtRegAcc:             {OperandReg},
	OpGtRegReg:             {OperandReg, OperandReg},
	OpGteVarVar:            {OperandVar, OperandVar},
	OpGteRegAcc:            {OperandReg},
	OpGteRegReg:            {OperandReg, OperandReg},
	OpInVarVar:             {OperandVar, OperandVar},
	OpInRegAcc:             {OperandReg},
	OpInRegReg:             {OperandReg, OperandReg},
	OpInstanceOfVarVar:     {OperandVar, OperandVar},
	OpInstanceOfRegAcc:     {OperandReg},
	OpInstanceOfRegReg:     {OperandReg, OperandReg},
	OpLAndRegAcc:           {OperandReg},
	OpLOrRegAcc:            {OperandReg},
	OpIncVar:               {OperandVar},
	OpIncReg:               {OperandReg},
	OpDecVar:               {OperandVar},
	OpDecReg:               {OperandReg},
	OpPushArgReg:           {OperandReg},
	OpCall:                 {OperandReg},
	OpCallMember:           {OperandReg, OperandReg},
	OpConstruct:            {OperandReg},
	OpThrowReg:             {OperandReg},
	OpJmp:                  {OperandAddr},
	OpJmpRel:               {OperandImm},
	OpJmpIfAcc:             {OperandAddr},
	OpJmpIfNotAcc:          {OperandAddr},
	OpJmpIfAccRel:          {OperandImm},
	OpJmpIfNotAccRel:       {OperandImm},
	OpJmpIfNullishAcc:      {OperandAddr},
	OpJmpIfNotUndefinedAcc: {OperandAddr},
	OpPushScope:            {OperandImm, OperandImm, OperandAddr, OperandAddr},
	OpEnterTry:             {OperandAddr, OperandAddr, OperandVar},
	OpYieldDelegate:        {OperandReg},
	OpBreakLabel:           {OperandImm},
	OpContinueLabel:        {OperandImm},
	OpGetIterator:          {OperandImm},
	OpIteratorNext:         {OperandReg, OperandAddr},
	OpIteratorNextRaw:      {OperandReg},
	OpIteratorStep:         {OperandReg, OperandAddr},
	OpIteratorClose:        {OperandReg},
	OpArrayPush:            {OperandReg},
	OpArraySpread:          {OperandReg},
	OpArrayHole:            {OperandReg},
	OpDefineField:          {OperandReg, OperandVar},
	OpDefineComputed:       {OperandReg, OperandReg},
	OpDefineMethod:         {OperandReg, OperandReg, OperandImm},
	OpCopyDataProps:        {OperandReg},
	OpCopyRest:             {OperandReg, OperandReg},
	OpSetProtoOf:           {OperandReg},
	OpMakeClosure:          {OperandConst},
	OpMakeClass:            {OperandReg, OperandConst, OperandImm},
	OpSetClassFields:       {OperandReg},
	OpTemplateObject:       {OperandConst},
	OpInitHomeObject:       {OperandReg},
}
