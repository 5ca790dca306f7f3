package hostapi

import "github.com/cryguy/adhesive/internal/core"

// baseClassesJS defines the managed library: the Adhesive base class every
// function extends, the Table/Vector/Row views over an imported batch, and
// the Compiler singleton. Requires the prelude and the arrow host module.
const baseClassesJS = `
(function(rt) {
	var views = {
		BigInt64Array: BigInt64Array,
		BigUint64Array: BigUint64Array,
		Int32Array: Int32Array,
		Int16Array: Int16Array,
		Int8Array: Int8Array,
		Uint32Array: Uint32Array,
		Uint16Array: Uint16Array,
		Uint8Array: Uint8Array,
		Float64Array: Float64Array,
		Float32Array: Float32Array
	};

	var outputs = {
		int64: {view: BigInt64Array, width: 8, encode: function(v) {
			var b = typeof v === 'bigint' ? v : BigInt(Math.trunc(Number(v)));
			return BigInt.asIntN(64, b);
		}},
		int32: {view: Int32Array, width: 4, encode: function(v) {
			return typeof v === 'bigint' ? Number(BigInt.asIntN(32, v)) : Number(v) | 0;
		}},
		float64: {view: Float64Array, width: 8, encode: function(v) { return Number(v); }},
		float32: {view: Float32Array, width: 4, encode: function(v) { return Number(v); }}
	};

	function take(name) {
		var buf = globalThis[name];
		delete globalThis[name];
		return buf;
	}

	function allocate(bytes) {
		return globalThis.` + binaryModeGlobal + ` === 'sab' ? new SharedArrayBuffer(bytes) : new ArrayBuffer(bytes);
	}

	function isSet(bits, i) {
		return (bits[i >> 3] & (1 << (i & 7))) !== 0;
	}

	class Vector {
		constructor(layout, values, validity) {
			this.kind = layout.kind;
			this.strings = layout.values || null;
			this.bits = layout.view === 'bits' ? new Uint8Array(values) : null;
			this.data = layout.view && layout.view !== 'bits' ? new views[layout.view](values) : null;
			this.validity = validity ? new Uint8Array(validity) : null;
		}
		get(i) {
			if (this.validity !== null && !isSet(this.validity, i)) return null;
			if (this.strings !== null) return this.strings[i];
			if (this.bits !== null) return isSet(this.bits, i);
			var v = this.data[i];
			return this.kind === 'number' ? Number(v) : v;
		}
	}

	class Table {
		constructor(schemaAddr, arrayAddr) {
			this.handle = __arrow_import(String(schemaAddr), String(arrayAddr));
			var d = JSON.parse(__arrow_describe(this.handle));
			this.rowCount = d.rows;
			this.fields = d.columns;
			this.vectors = new Array(d.columns.length);
		}
		getRowCount() { return this.rowCount; }
		getColumnCount() { return this.fields.length; }
		getField(i) { return this.fields[i]; }
		getVector(i) {
			if (i < 0 || i >= this.fields.length) {
				throw new RangeError('column index ' + i + ' out of range [0, ' + this.fields.length + ')');
			}
			var v = this.vectors[i];
			if (v === undefined) {
				var layout = JSON.parse(__arrow_column(this.handle, i));
				if (layout.view && layout.view !== 'bits' && !views[layout.view]) {
					throw new TypeError('unsupported column view ' + layout.view);
				}
				var values = layout.view ? take('` + inValuesGlobal + `') : null;
				var validity = layout.nulls ? take('` + inValidityGlobal + `') : null;
				v = new Vector(layout, values, validity);
				this.vectors[i] = v;
			}
			return v;
		}
		close() {
			if (this.handle !== null) {
				__arrow_release(this.handle);
				this.handle = null;
			}
		}
	}

	class Row {
		constructor(table) {
			this.table = table;
			this.index = 0;
		}
		getRowNumber() { return this.index; }
		get(i) { return this.table.getVector(i).get(this.index); }
		isNull(i) {
			var v = this.get(i);
			return v === null || v === undefined;
		}
		getBigInt(i) {
			var v = this.get(i);
			if (v === null) return null;
			return typeof v === 'bigint' ? v : BigInt(Math.trunc(Number(v)));
		}
		getInt(i) {
			var v = this.get(i);
			return v === null ? null : Number(v) | 0;
		}
		getDouble(i) {
			var v = this.get(i);
			return v === null ? null : Number(v);
		}
		getString(i) {
			var v = this.get(i);
			return v === null ? null : String(v);
		}
		getBoolean(i) {
			var v = this.get(i);
			return v === null ? null : Boolean(v);
		}
	}

	class Adhesive {
		compute(row) {
			throw new Error(rt.className(this.constructor) + ' does not implement compute(row)');
		}
		computeBigInt(inSchema, inArray, outSchema, outArray) {
			this.computeInternal(inSchema, inArray, outSchema, outArray, 'int64', false);
		}
		computeNonNullBigInt(inSchema, inArray, outSchema, outArray) {
			this.computeInternal(inSchema, inArray, outSchema, outArray, 'int64', true);
		}
		computeInt(inSchema, inArray, outSchema, outArray) {
			this.computeInternal(inSchema, inArray, outSchema, outArray, 'int32', false);
		}
		computeFloat(inSchema, inArray, outSchema, outArray) {
			this.computeInternal(inSchema, inArray, outSchema, outArray, 'float32', false);
		}
		computeDouble(inSchema, inArray, outSchema, outArray) {
			this.computeInternal(inSchema, inArray, outSchema, outArray, 'float64', false);
		}
		computeInternal(inSchema, inArray, outSchema, outArray, type, nonNull) {
			var out = outputs[type];
			if (!out) throw new TypeError('unsupported result type ' + type);
			var table = new Table(inSchema, inArray);
			try {
				var n = table.getRowCount();
				var values = new out.view(allocate(n * out.width));
				var validity = new Uint8Array(allocate((n + 7) >> 3));
				var nulls = 0;
				var row = new Row(table);
				for (var i = 0; i < n; i++) {
					row.index = i;
					var v = this.compute(row);
					if (v === null || v === undefined) {
						if (nonNull) throw new TypeError('compute returned null for row ' + i);
						nulls++;
					} else {
						values[i] = out.encode(v);
						validity[i >> 3] |= 1 << (i & 7);
					}
				}
				globalThis.` + outValuesGlobal + ` = values.buffer;
				if (nulls > 0) globalThis.` + outValidityGlobal + ` = validity.buffer;
				__arrow_export(type, n, nulls, String(outSchema), String(outArray));
			} finally {
				delete globalThis.` + outValuesGlobal + `;
				delete globalThis.` + outValidityGlobal + `;
				table.close();
			}
		}
	}

	var packageDirective = /^\s*(?:"package\s+([\w.$]+)"|'package\s+([\w.$]+)')/;

	class Compiler {
		compile(fqn, source) {
			var dot = fqn.lastIndexOf('.');
			var pkg = dot < 0 ? '' : fqn.substring(0, dot);
			var simple = fqn.substring(dot + 1);
			var m = packageDirective.exec(source);
			var declared = m ? (m[1] || m[2]) : '';
			if (declared !== pkg) {
				throw new InstantiationError("Can't compile function: " + fqn +
					' does not match declared package ' + (declared || '<none>'));
			}
			var ctor;
			try {
				ctor = rt.evalClass(source, simple);
			} catch (err) {
				var d = rt.describe(err);
				throw new InstantiationError("Can't compile function: " + d.name + ': ' + d.message);
			}
			if (typeof ctor !== 'function') {
				throw new InstantiationError("Can't compile function: source does not declare class " + simple);
			}
			if (!(ctor.prototype instanceof Adhesive)) {
				throw new InstantiationError("Can't compile function: " + simple + ' does not extend adhesive.Adhesive');
			}
			rt.defineClass(fqn.replace(/\./g, '/'), ctor);
			return new ctor();
		}
	}
	Compiler.INSTANCE = new Compiler();

	rt.defineClass('` + BaseClassPath + `', Adhesive);
	rt.defineClass('` + CompilerClassPath + `', Compiler);

	globalThis.Adhesive = Adhesive;
	globalThis.adhesive = {Adhesive: Adhesive, Compiler: Compiler, Table: Table, Vector: Vector, Row: Row};
})(globalThis.__adhesive);
`

// SetupBaseClasses defines the managed base class, the batch views and the
// compiler.
func SetupBaseClasses(rt core.Runtime) error {
	return rt.Eval(baseClassesJS)
}
